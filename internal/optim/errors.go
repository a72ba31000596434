package optim

import "github.com/pkg/errors"

// Sentinel errors. Returned errors wrap one of these (or a tree package
// sentinel for structural mismatches) with the name of the failing
// transformation; match with errors.Is.
var (
	// ErrParamsRequired: Update was called without params on a
	// transformation whose rule depends on them.
	ErrParamsRequired = errors.New("optim: params required")

	// ErrInvalidState: the state passed to Update was not produced by the
	// same transformation's Init.
	ErrInvalidState = errors.New("optim: invalid state")

	// ErrInvalidAccumulation: a gradient accumulation count below 1.
	ErrInvalidAccumulation = errors.New("optim: invalid accumulation count")

	// ErrNonFiniteBudgetExceeded: ApplyIfFinite saw more consecutive
	// non-finite updates than allowed. Training should stop.
	ErrNonFiniteBudgetExceeded = errors.New("optim: consecutive non-finite updates exceeded budget")

	// ErrBatchDimension: per-example updates without a shared leading batch axis.
	ErrBatchDimension = errors.New("optim: updates need a leading batch dimension")

	// ErrUnsupportedRank: a leaf rank the transformation cannot handle.
	ErrUnsupportedRank = errors.New("optim: unsupported leaf rank")

	// ErrUnknownHyperparam: a hyperparameter name that is not injected.
	ErrUnknownHyperparam = errors.New("optim: unknown hyperparameter")
)
