// Package mderrors defines the error taxonomy shared across MindooDB's
// components. Each code is a distinct exported type or sentinel rather than
// an exception hierarchy, tested with errors.As/errors.Is at call sites.
package mderrors

import "fmt"

// IoError wraps a failure from the underlying storage layer.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string { return fmt.Sprintf("mindoodb: io error during %s: %v", e.Op, e.Err) }
func (e *IoError) Unwrap() error { return e.Err }

// CorruptionError reports a content-hash mismatch on read.
type CorruptionError struct {
	ID string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("mindoodb: corrupted entry %q: contentHash mismatch", e.ID)
}

// SignatureInvalid reports an Ed25519 verification failure.
type SignatureInvalid struct {
	ID string
}

func (e *SignatureInvalid) Error() string {
	return fmt.Sprintf("mindoodb: signature invalid for entry %q", e.ID)
}

// PublicKeyNotTrusted reports a signer whose key the Directory does not trust.
type PublicKeyNotTrusted struct {
	PublicKey string
}

func (e *PublicKeyNotTrusted) Error() string {
	return fmt.Sprintf("mindoodb: public key %q is not trusted", e.PublicKey)
}

// SymmetricKeyNotFound reports a decryptionKeyId absent from the KeyBag.
type SymmetricKeyNotFound struct {
	Kind, ID string
}

func (e *SymmetricKeyNotFound) Error() string {
	return fmt.Sprintf("mindoodb: symmetric key not found for (%s, %s)", e.Kind, e.ID)
}

// MissingKeyError reports that opening a tenant is missing a required key.
type MissingKeyError struct {
	Kind, ID string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("mindoodb: missing required key (%s, %s); import it into the KeyBag before opening this tenant", e.Kind, e.ID)
}

// DuplicateUserError reports a username re-registered with different keys.
type DuplicateUserError struct {
	Username string
}

func (e *DuplicateUserError) Error() string {
	return fmt.Sprintf("mindoodb: user %q already registered with different keys", e.Username)
}

// AdminOnlyViolation reports a non-admin-signed entry submitted to the directory.
type AdminOnlyViolation struct {
	ID string
}

func (e *AdminOnlyViolation) Error() string {
	return fmt.Sprintf("mindoodb: entry %q not signed by the administration key", e.ID)
}

// PurgeUnsupported reports a purge request against a store lacking support.
type PurgeUnsupported struct {
	Store string
}

func (e *PurgeUnsupported) Error() string {
	return fmt.Sprintf("mindoodb: purge not supported by store %q", e.Store)
}

// InvalidUseError reports a misuse of the changeDoc/attachment API contract.
type InvalidUseError struct {
	Reason string
}

func (e *InvalidUseError) Error() string { return fmt.Sprintf("mindoodb: invalid use: %s", e.Reason) }

// NotSupportedError reports an operation a given implementation cannot perform.
type NotSupportedError struct {
	Op string
}

func (e *NotSupportedError) Error() string { return fmt.Sprintf("mindoodb: not supported: %s", e.Op) }

// TimeoutError reports an operation exceeding its deadline.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("mindoodb: timeout during %s", e.Op) }

// EntryNotFoundError reports a lookup miss by id.
type EntryNotFoundError struct {
	ID string
}

func (e *EntryNotFoundError) Error() string { return fmt.Sprintf("mindoodb: entry %q not found", e.ID) }

// DocumentNotFoundError reports a lookup miss by docId.
type DocumentNotFoundError struct {
	DocID string
}

func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("mindoodb: document %q not found", e.DocID)
}
