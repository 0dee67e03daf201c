package patch

import "errors"

var (
	// ErrAlreadyHooked means the target already has a live hook; applying a
	// second one would destroy the first hook's saved prologue.
	ErrAlreadyHooked = errors.New("target is already hooked")
	// ErrHookNotFound means the hook is not in the registry.
	ErrHookNotFound = errors.New("hook not found")
	// ErrNilPointer means target or detour is null.
	ErrNilPointer = errors.New("target or detour is null")
	// ErrUnsafeTarget means the target's prologue contains a PC-relative
	// instruction inside the patch window and cannot be relocated.
	ErrUnsafeTarget = errors.New("target prologue is not relocatable")
	// ErrShortFunction means the target is too short to hold the patch
	// without corrupting adjacent code.
	ErrShortFunction = errors.New("target is too short to patch")
)
