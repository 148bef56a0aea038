package staging

import "log/slog"

// unwinder runs a stack of cleanup actions in reverse order, matching
// §4.1's failure contract: "the tmpfs and any submounts should be
// unmounted in reverse order and the directory removed." Disarmed once
// the stage2 config is durably written (step 10 succeeds).
type unwinder struct {
	log      *slog.Logger
	actions  []func() error
	disarmed bool
}

func newUnwinder(log *slog.Logger) *unwinder {
	return &unwinder{log: log}
}

func (u *unwinder) push(action func() error) {
	u.actions = append(u.actions, action)
}

func (u *unwinder) disarm() {
	u.disarmed = true
}

func (u *unwinder) runIfNotDisarmed() {
	if u.disarmed {
		return
	}
	for i := len(u.actions) - 1; i >= 0; i-- {
		if err := u.actions[i](); err != nil {
			u.log.Warn("staging unwind step failed", "error", err)
		}
	}
}
