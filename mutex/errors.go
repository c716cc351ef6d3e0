package mutex

import "fmt"

// LostLockError reports that the held lock was observed to be gone while the
// work was still running: the key was deleted, its session was cleared, or a
// different session took it over.
type LostLockError struct {
	// Session is the foreign session that took the lock, when that is the
	// cause; empty otherwise.
	Session string

	message string
}

func (e *LostLockError) Error() string {
	return e.message
}

// lostKeyDeleted, lostNoSession and lostToSession construct the three loss
// variants a watcher can observe.
func lostKeyDeleted() *LostLockError {
	return &LostLockError{message: "Lost lock, key deleted!"}
}

func lostNoSession() *LostLockError {
	return &LostLockError{message: "Lost lock, no active session!"}
}

func lostToSession(session string) *LostLockError {
	return &LostLockError{
		Session: session,
		message: fmt.Sprintf("Lost lock to session '%s'", session),
	}
}

// WorkerError reports that the caller's work function failed while the lock
// was held. The original failure is the wrapped cause.
type WorkerError struct {
	Cause error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("work failed while holding lock: %v", e.Cause)
}

func (e *WorkerError) Unwrap() error {
	return e.Cause
}
