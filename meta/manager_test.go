package meta

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/multifs-backend/interfaces"
	"github.com/stretchr/testify/assert"
)

func newTestManager(t *testing.T) (*Manager, *fakeFactory) {
	t.Helper()
	factory := newFakeFactory()
	mgr, err := NewManager(&Config{
		RootDir: t.TempDir(),
		Factory: factory,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	assert.NoError(t, err)
	return mgr, factory
}

func textModel(content string) *interfaces.ContentModel {
	return &interfaces.ContentModel{
		Type:    interfaces.FileType,
		Format:  interfaces.TextFormat,
		Content: content,
	}
}

func TestManager_DefaultDriveRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	saved, err := mgr.Save(ctx, "notes.txt", textModel("hello"))
	assert.NoError(t, err)
	assert.Equal(t, "notes.txt", saved.Path)

	model, err := mgr.Get(ctx, "notes.txt", true)
	assert.NoError(t, err)
	assert.Equal(t, "hello", model.Content)
	assert.Equal(t, interfaces.FileType, model.Type)
	assert.Equal(t, "notes.txt", model.Path)
}

func TestManager_PrefixedDriveRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	resources, err := mgr.Reconfigure(ctx, specsFor("mem://alpha"))
	assert.NoError(t, err)
	drive := resources[0].Drive

	prefixed := drive.PrefixPath("dir/notes.txt")
	saved, err := mgr.Save(ctx, prefixed, textModel("routed"))
	assert.NoError(t, err)
	assert.Equal(t, prefixed, saved.Path)

	model, err := mgr.Get(ctx, prefixed, true)
	assert.NoError(t, err)
	assert.Equal(t, "routed", model.Content)
	assert.Equal(t, prefixed, model.Path)

	// The default drive must not see the file.
	exists, err := mgr.Exists(ctx, "dir/notes.txt")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestManager_DirectoryListingPrefixed(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	resources, err := mgr.Reconfigure(ctx, specsFor("mem://alpha"))
	assert.NoError(t, err)
	drive := resources[0].Drive

	_, err = mgr.Save(ctx, drive.PrefixPath("dir/a.txt"), textModel("a"))
	assert.NoError(t, err)
	_, err = mgr.Save(ctx, drive.PrefixPath("dir/b.txt"), textModel("b"))
	assert.NoError(t, err)

	model, err := mgr.Get(ctx, drive.PrefixPath("dir"), true)
	assert.NoError(t, err)
	assert.Equal(t, interfaces.DirectoryType, model.Type)
	assert.Equal(t, drive.PrefixPath("dir"), model.Path)
	assert.Len(t, model.Entries, 2)
	for _, entry := range model.Entries {
		assert.Equal(t, drive.PrefixPath("dir/"+entry.Name), entry.Path)
	}
}

func TestManager_UnknownDrive(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Get(ctx, "deadbeef:notes.txt", true)
	assert.ErrorIs(t, err, interfaces.ErrUnknownDrive)

	_, err = mgr.Save(ctx, "deadbeef:notes.txt", textModel("x"))
	assert.ErrorIs(t, err, interfaces.ErrUnknownDrive)

	err = mgr.Delete(ctx, "deadbeef:notes.txt")
	assert.ErrorIs(t, err, interfaces.ErrUnknownDrive)
}

func TestManager_UnprefixedColonPath(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	// A colon-bearing name that is not a drive identifier routes to the
	// default drive with the path unchanged.
	saved, err := mgr.Save(ctx, "report:draft.txt", textModel("x"))
	assert.NoError(t, err)
	assert.Equal(t, "report:draft.txt", saved.Path)

	// An explicit empty prefix addresses the default drive too.
	model, err := mgr.Get(ctx, ":report:draft.txt", true)
	assert.NoError(t, err)
	assert.Equal(t, "x", model.Content)
}

func TestManager_RenameWithinDrive(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	resources, err := mgr.Reconfigure(ctx, specsFor("mem://alpha"))
	assert.NoError(t, err)
	drive := resources[0].Drive

	_, err = mgr.Save(ctx, drive.PrefixPath("old.txt"), textModel("move me"))
	assert.NoError(t, err)

	err = mgr.Rename(ctx, drive.PrefixPath("old.txt"), drive.PrefixPath("new.txt"))
	assert.NoError(t, err)

	model, err := mgr.Get(ctx, drive.PrefixPath("new.txt"), true)
	assert.NoError(t, err)
	assert.Equal(t, "move me", model.Content)

	_, err = mgr.Get(ctx, drive.PrefixPath("old.txt"), false)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestManager_CrossDriveRenameRejected(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	resources, err := mgr.Reconfigure(ctx, specsFor("mem://alpha", "mem://beta"))
	assert.NoError(t, err)
	alpha, beta := resources[0].Drive, resources[1].Drive

	_, err = mgr.Save(ctx, alpha.PrefixPath("doc.txt"), textModel("stay put"))
	assert.NoError(t, err)

	tests := []struct {
		name    string
		oldPath string
		newPath string
	}{
		{
			name:    "between registered drives",
			oldPath: alpha.PrefixPath("doc.txt"),
			newPath: beta.PrefixPath("doc.txt"),
		},
		{
			name:    "registered to default",
			oldPath: alpha.PrefixPath("doc.txt"),
			newPath: "doc.txt",
		},
		{
			name:    "default to registered",
			oldPath: "doc.txt",
			newPath: alpha.PrefixPath("doc.txt"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mgr.Rename(ctx, tt.oldPath, tt.newPath)
			assert.ErrorIs(t, err, interfaces.ErrCrossDrive)
		})
	}

	// Neither side changed.
	model, err := mgr.Get(ctx, alpha.PrefixPath("doc.txt"), true)
	assert.NoError(t, err)
	assert.Equal(t, "stay put", model.Content)

	exists, err := mgr.Exists(ctx, beta.PrefixPath("doc.txt"))
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestManager_CheckpointsOnPrefixedDrive(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	resources, err := mgr.Reconfigure(ctx, specsFor("mem://alpha"))
	assert.NoError(t, err)
	path := resources[0].Drive.PrefixPath("doc.txt")

	_, err = mgr.Save(ctx, path, textModel("v1"))
	assert.NoError(t, err)

	cp, err := mgr.CreateCheckpoint(ctx, path)
	assert.NoError(t, err)
	assert.NotEmpty(t, cp.ID)

	_, err = mgr.Save(ctx, path, textModel("v2"))
	assert.NoError(t, err)

	err = mgr.RestoreCheckpoint(ctx, path, cp.ID)
	assert.NoError(t, err)

	model, err := mgr.Get(ctx, path, true)
	assert.NoError(t, err)
	assert.Equal(t, "v1", model.Content)

	checkpoints, err := mgr.ListCheckpoints(ctx, path)
	assert.NoError(t, err)
	assert.Len(t, checkpoints, 1)

	err = mgr.DeleteCheckpoint(ctx, path, cp.ID)
	assert.NoError(t, err)

	err = mgr.RestoreCheckpoint(ctx, path, cp.ID)
	assert.ErrorIs(t, err, interfaces.ErrCheckpointNotFound)
}

func TestManager_ReconfigurePreservesFiles(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	resources, err := mgr.Reconfigure(ctx, specsFor("mem://alpha"))
	assert.NoError(t, err)
	path := resources[0].Drive.PrefixPath("keep.txt")

	_, err = mgr.Save(ctx, path, textModel("still here"))
	assert.NoError(t, err)

	// Reconfiguring with the same URL keeps the manager instance, so
	// in-memory state survives.
	_, err = mgr.Reconfigure(ctx, specsFor("mem://alpha", "mem://beta"))
	assert.NoError(t, err)

	model, err := mgr.Get(ctx, path, true)
	assert.NoError(t, err)
	assert.Equal(t, "still here", model.Content)
}
