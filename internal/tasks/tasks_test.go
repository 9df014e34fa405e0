package tasks

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(Task{ID: "1", Name: "a"}, Task{ID: "2", Name: "b"})
	q.Push(Task{ID: "3", Name: "c"})

	var got []string
	for {
		task, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, task.ID)
	}
	if want := []string{"1", "2", "3"}; !reflect.DeepEqual(got, want) {
		t.Errorf("pop order = %v, want %v", got, want)
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
}

func TestQueuePushFront(t *testing.T) {
	q := NewQueue(Task{ID: "2", Name: "b"})
	q.PushFront(Task{ID: "1", Name: "a"})
	task, _ := q.Pop()
	if task.ID != "1" {
		t.Errorf("head = %q, want 1", task.ID)
	}
}

func TestQueueEditRemove(t *testing.T) {
	q := NewQueue(
		Task{ID: "1", Name: "a"},
		Task{ID: "2", Name: "b"},
		Task{ID: "2", Name: "duplicate label"},
	)

	if !q.Edit("1", "renamed") {
		t.Fatal("Edit existing = false")
	}
	if q.Edit("9", "x") {
		t.Error("Edit missing = true")
	}
	if q.Tasks()[0].Name != "renamed" {
		t.Errorf("name = %q, want renamed", q.Tasks()[0].Name)
	}

	if n := q.Remove("2"); n != 2 {
		t.Errorf("Remove duplicate label = %d, want 2", n)
	}
	if n := q.Remove("2"); n != 0 {
		t.Errorf("Remove again = %d, want 0", n)
	}
	if want := []string{"renamed"}; !reflect.DeepEqual(q.Names(), want) {
		t.Errorf("Names = %v, want %v", q.Names(), want)
	}
}

func TestQueueTasksIsCopy(t *testing.T) {
	q := NewQueue(Task{ID: "1", Name: "a"})
	snapshot := q.Tasks()
	snapshot[0].Name = "mutated"
	if q.Tasks()[0].Name != "a" {
		t.Error("mutating snapshot changed the queue")
	}
}

func TestQueueReplaceAndClear(t *testing.T) {
	q := NewQueue(Task{ID: "1", Name: "a"})
	q.Replace([]Task{{ID: "5", Name: "x"}, {ID: "6", Name: "y"}})
	if q.Len() != 2 || q.Tasks()[0].ID != "5" {
		t.Errorf("after Replace = %v", q.Tasks())
	}
	q.Clear()
	if q.Len() != 0 {
		t.Errorf("after Clear Len = %d", q.Len())
	}
}

func TestNumericID(t *testing.T) {
	if n, ok := (Task{ID: "12"}).NumericID(); !ok || n != 12 {
		t.Errorf("NumericID(12) = %d, %v", n, ok)
	}
	if _, ok := (Task{ID: "task-a"}).NumericID(); ok {
		t.Error("NumericID(task-a) ok = true")
	}
}

func TestTaskStoreSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "tasks.yaml")
	store := NewTaskStore(path)

	if store.Exists() {
		t.Fatal("Exists before Save = true")
	}

	store.SetFile(&TaskFile{
		SchemaVersion: 1,
		SessionID:     "ses-1",
		Objective:     "Solve world hunger.",
		TaskCounter:   4,
		Tasks: []Task{
			{ID: "3", Name: "Survey food banks"},
			{ID: "4", Name: "Estimate logistics cost"},
		},
	})
	if err := store.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := NewTaskStore(path)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.File().TaskCounter != 4 {
		t.Errorf("TaskCounter = %d, want 4", loaded.File().TaskCounter)
	}
	if !reflect.DeepEqual(loaded.Tasks(), store.Tasks()) {
		t.Errorf("Tasks = %v, want %v", loaded.Tasks(), store.Tasks())
	}

	if err := loaded.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if loaded.Exists() {
		t.Error("Exists after Remove = true")
	}
}

func TestTaskStoreSaveWithoutFile(t *testing.T) {
	store := NewTaskStore(filepath.Join(t.TempDir(), "tasks.yaml"))
	if err := store.Save(); err == nil {
		t.Error("expected error saving with no file loaded")
	}
}

func TestTaskStoreLoadCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	os.WriteFile(path, []byte("tasks: [unclosed"), 0o644)
	if err := NewTaskStore(path).Load(); err == nil {
		t.Error("expected error for corrupted tasks file")
	}
}
