package registry

import "errors"

var (
	// ErrInvalidExpiry is returned by Create when expires_at is not in the future.
	ErrInvalidExpiry = errors.New("expiry not in the future")

	// ErrInvalidTrigger is returned by Create for a trigger kind outside the
	// enumerated set.
	ErrInvalidTrigger = errors.New("invalid trigger kind")

	// ErrEmptyPayload is returned by Create when no ciphertext is supplied.
	ErrEmptyPayload = errors.New("empty encrypted payload")

	// ErrNotFound is returned when no intent exists for the given id.
	ErrNotFound = errors.New("intent not found")

	// ErrNotOwner is returned by Cancel when the caller does not own the intent.
	ErrNotOwner = errors.New("caller is not the intent owner")

	// ErrUnauthorized is returned by privileged operations when the caller's
	// signature does not verify against the registered enclave identity.
	// It carries no information about the target intent's state.
	ErrUnauthorized = errors.New("caller is not the registered enclave")

	// ErrInvalidState is returned when the requested transition does not
	// apply to the intent's current status. For competing operations (claim
	// racing cancel, duplicate claims) this is the expected outcome of losing
	// the race, not a system fault.
	ErrInvalidState = errors.New("transition not allowed from current status")

	// ErrExpired is returned by ClaimForExecution when the intent's deadline
	// has passed. An expired intent can never be claimed.
	ErrExpired = errors.New("intent expired")

	// ErrNotStuck is returned by RecoverStuck when the claim is younger than
	// the stuck threshold.
	ErrNotStuck = errors.New("claim below stuck threshold")

	// ErrNoEnclave is returned by privileged operations before an enclave
	// identity has been registered.
	ErrNoEnclave = errors.New("no enclave identity registered")

	// ErrEnclaveRegistered is returned when a second enclave registration is
	// attempted. Registration is a one-time administrative action.
	ErrEnclaveRegistered = errors.New("enclave identity already registered")
)
