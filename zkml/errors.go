package zkml

import "errors"

// Error taxonomy for the proving pipeline. Every failure surfaced by this
// package wraps exactly one of these sentinels, so callers can classify with
// errors.Is without parsing messages.
var (
	// ErrModelLoad reports a missing, malformed, or unsupported model file.
	ErrModelLoad = errors.New("zkml: model load failed")

	// ErrPreprocessing reports bytecode that violates circuit shape
	// assumptions (unsupported instruction, value bound exceeding the field).
	ErrPreprocessing = errors.New("zkml: preprocessing failed")

	// ErrInvalidInput reports a witness of the wrong arity or magnitude, or a
	// schema violation in a request payload.
	ErrInvalidInput = errors.New("zkml: invalid input")

	// ErrNotPreprocessed reports a prove call before preprocessing.
	ErrNotPreprocessed = errors.New("zkml: model not preprocessed")

	// ErrProving reports an internal inconsistency between a trace and the
	// preprocessing it is being proven against.
	ErrProving = errors.New("zkml: proving failed")

	// ErrDeserialization reports malformed proof, verifying key, or output
	// bytes at the verification boundary. Distinct from a verification result
	// of false: the bytes were garbage, not a rejected proof.
	ErrDeserialization = errors.New("zkml: deserialization failed")

	// ErrVerification reports that the verification check itself could not be
	// performed. A well-formed but cryptographically rejected proof returns
	// (false, nil) instead.
	ErrVerification = errors.New("zkml: verification failed")
)
