package timer

import "github.com/mcdev12/tasktimer/go/internal/models"

const (
	// TimerServiceName is the fully-qualified name of the TimerService service.
	TimerServiceName = "timer.v1.TimerService"

	GetTimerProcedure       = "/timer.v1.TimerService/GetTimer"
	SetDescriptionProcedure = "/timer.v1.TimerService/SetDescription"
	FocusTimeProcedure      = "/timer.v1.TimerService/FocusTime"
	BlurTimeProcedure       = "/timer.v1.TimerService/BlurTime"
	ToggleProcedure         = "/timer.v1.TimerService/Toggle"
	ResetProcedure          = "/timer.v1.TimerService/Reset"
)

// Empty is the request of procedures without arguments.
type Empty struct{}

// TextRequest carries the text of a description or time field.
type TextRequest struct {
	Text string `json:"text"`
}

// TimerResponse is returned by every procedure.
type TimerResponse struct {
	View     View            `json:"view"`
	Snapshot models.Snapshot `json:"snapshot"`
}
