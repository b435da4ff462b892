package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rewired-gh/oeewatch/internal/models"
)

type fakeNotifier struct {
	sent       int
	errors     []error
	recoveries []int
}

func (f *fakeNotifier) Send(reports []*models.ParetoReport) error {
	f.sent += len(reports)
	return nil
}

func (f *fakeNotifier) SendError(err error) error {
	f.errors = append(f.errors, err)
	return nil
}

func (f *fakeNotifier) SendRecovery(failures int) error {
	f.recoveries = append(f.recoveries, failures)
	return nil
}

func TestHandleCycleResult_NotifiesFirstFailureAndRecovery(t *testing.T) {
	n := &fakeNotifier{}
	svc := &service{notifier: n}

	boom := errors.New("factory API unreachable")
	svc.handleCycleResult(boom)
	svc.handleCycleResult(boom)
	svc.handleCycleResult(boom)

	assert.Equal(t, 3, svc.consecutiveFailures)
	assert.Len(t, n.errors, 1, "only the first failure of a streak is reported")

	svc.handleCycleResult(nil)
	assert.Equal(t, 0, svc.consecutiveFailures)
	assert.Equal(t, []int{3}, n.recoveries)

	svc.handleCycleResult(nil)
	assert.Equal(t, []int{3}, n.recoveries, "no recovery without a preceding failure")
}

func TestHandleCycleResult_WithoutNotifier(t *testing.T) {
	svc := &service{}

	svc.handleCycleResult(errors.New("boom"))
	assert.Equal(t, 1, svc.consecutiveFailures)

	svc.handleCycleResult(nil)
	assert.Equal(t, 0, svc.consecutiveFailures)
}
