package store

import (
	"context"
	"errors"
	"testing"
)

func TestFolderCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("create requires a non-empty title", func(t *testing.T) {
		if _, err := store.CreateFolder(ctx, 1, "   "); err == nil {
			t.Error("Expected error for empty title")
		}
	})

	t.Run("create and list", func(t *testing.T) {
		if _, err := store.CreateFolder(ctx, 1, "Work"); err != nil {
			t.Fatalf("Failed to create folder: %v", err)
		}
		if _, err := store.CreateFolder(ctx, 1, "Ideas"); err != nil {
			t.Fatalf("Failed to create folder: %v", err)
		}

		folders, err := store.ListFolders(ctx, 0)
		if err != nil {
			t.Fatalf("Failed to list folders: %v", err)
		}
		if len(folders) != 2 {
			t.Fatalf("Expected 2 folders, got %d", len(folders))
		}
		// Ordered by title
		if folders[0].Title != "Ideas" || folders[1].Title != "Work" {
			t.Errorf("Unexpected order: %s, %s", folders[0].Title, folders[1].Title)
		}
	})

	t.Run("rename", func(t *testing.T) {
		folder, err := store.CreateFolder(ctx, 1, "Temp")
		if err != nil {
			t.Fatalf("Failed to create folder: %v", err)
		}
		if err := store.RenameFolder(ctx, 0, folder.ID, "Archive"); err != nil {
			t.Fatalf("Failed to rename folder: %v", err)
		}
		renamed, err := store.GetFolder(ctx, 0, folder.ID)
		if err != nil {
			t.Fatalf("Failed to get folder: %v", err)
		}
		if renamed.Title != "Archive" {
			t.Errorf("Expected title 'Archive', got '%s'", renamed.Title)
		}
	})

	t.Run("rename unknown folder fails", func(t *testing.T) {
		err := store.RenameFolder(ctx, 0, "no-such-folder", "X")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestDeleteFolderPolicies(t *testing.T) {
	ctx := context.Background()

	// newPopulatedFolder creates a folder holding two conversations
	newPopulatedFolder := func(t *testing.T, store *Store) *Folder {
		t.Helper()
		folder, err := store.CreateFolder(ctx, 1, "Projects")
		if err != nil {
			t.Fatalf("Failed to create folder: %v", err)
		}
		for i := 0; i < 2; i++ {
			conv, err := store.CreateConversation(ctx, 1, &folder.ID, "gpt-4o-mini", "")
			if err != nil {
				t.Fatalf("Failed to create conversation: %v", err)
			}
			if _, err := store.AppendTurn(ctx, conv.ID, "Hello", "Hi", 5); err != nil {
				t.Fatalf("Failed to append turn: %v", err)
			}
		}
		return folder
	}

	t.Run("block policy refuses to delete a non-empty folder", func(t *testing.T) {
		store := newTestStore(t)
		folder := newPopulatedFolder(t, store)

		err := store.DeleteFolder(ctx, 0, folder.ID, false)
		if !errors.Is(err, ErrFolderNotEmpty) {
			t.Fatalf("Expected ErrFolderNotEmpty, got %v", err)
		}

		// Folder and conversations untouched
		if _, err := store.GetFolder(ctx, 0, folder.ID); err != nil {
			t.Errorf("Folder should still exist: %v", err)
		}
		list, err := store.ListConversations(ctx, 0)
		if err != nil {
			t.Fatalf("Failed to list conversations: %v", err)
		}
		if len(list) != 2 {
			t.Errorf("Expected 2 surviving conversations, got %d", len(list))
		}
	})

	t.Run("cascade policy removes folder with its conversations", func(t *testing.T) {
		store := newTestStore(t)
		folder := newPopulatedFolder(t, store)

		if err := store.DeleteFolder(ctx, 0, folder.ID, true); err != nil {
			t.Fatalf("Failed to cascade delete folder: %v", err)
		}

		if _, err := store.GetFolder(ctx, 0, folder.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound for deleted folder, got %v", err)
		}
		list, err := store.ListConversations(ctx, 0)
		if err != nil {
			t.Fatalf("Failed to list conversations: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("Expected 0 surviving conversations, got %d", len(list))
		}
	})

	t.Run("empty folder deletes under both policies", func(t *testing.T) {
		store := newTestStore(t)
		folder, err := store.CreateFolder(ctx, 1, "Empty")
		if err != nil {
			t.Fatalf("Failed to create folder: %v", err)
		}
		if err := store.DeleteFolder(ctx, 0, folder.ID, false); err != nil {
			t.Fatalf("Failed to delete empty folder: %v", err)
		}
		if err := store.DeleteFolder(ctx, 0, folder.ID, false); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound on repeated delete, got %v", err)
		}
	})

	t.Run("deleting a folder detaches nothing else", func(t *testing.T) {
		store := newTestStore(t)
		folder := newPopulatedFolder(t, store)
		loose, err := store.CreateConversation(ctx, 1, nil, "gpt-4o-mini", "")
		if err != nil {
			t.Fatalf("Failed to create conversation: %v", err)
		}

		if err := store.DeleteFolder(ctx, 0, folder.ID, true); err != nil {
			t.Fatalf("Failed to cascade delete folder: %v", err)
		}
		if _, err := store.GetConversation(ctx, 0, loose.ID); err != nil {
			t.Errorf("Unfiled conversation should survive: %v", err)
		}
	})
}

func TestFolderOwnerScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice, err := store.CreateUser(ctx, "alice", "hash", "")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	bob, err := store.CreateUser(ctx, "bob", "hash", "")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	folder, err := store.CreateFolder(ctx, alice.ID, "Work")
	if err != nil {
		t.Fatalf("Failed to create folder: %v", err)
	}

	t.Run("another owner cannot read the folder", func(t *testing.T) {
		if _, err := store.GetFolder(ctx, bob.ID, folder.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("another owner cannot rename the folder", func(t *testing.T) {
		if err := store.RenameFolder(ctx, bob.ID, folder.ID, "Hijacked"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		loaded, err := store.GetFolder(ctx, alice.ID, folder.ID)
		if err != nil {
			t.Fatalf("Failed to get folder: %v", err)
		}
		if loaded.Title != "Work" {
			t.Errorf("Title changed through a foreign owner: %s", loaded.Title)
		}
	})

	t.Run("another owner cannot delete the folder", func(t *testing.T) {
		if err := store.DeleteFolder(ctx, bob.ID, folder.ID, true); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if _, err := store.GetFolder(ctx, alice.ID, folder.ID); err != nil {
			t.Errorf("Folder gone after a foreign delete attempt: %v", err)
		}
	})
}
