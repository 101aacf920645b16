// Use to stub pwm.Channel in your tests.
package pwm_mock

import (
	"github.com/stretchr/testify/mock"
	"github.com/temoto/lightd/hardware/pwm"
)

type MockChannel struct{ mock.Mock }

var _ pwm.Channel = &MockChannel{}

func (m *MockChannel) SetDuty(percent uint8) error { return m.Called(percent).Error(0) }

func (m *MockChannel) Close() error { return m.Called().Error(0) }
