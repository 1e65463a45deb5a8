package config

type WorkerKeyStruct struct {
	RunEventsChannel string
	EnrollmentWorker string
	WindowMonitor    string
}

var WorkerKey = &WorkerKeyStruct{
	RunEventsChannel: "enroller:run_events",
	EnrollmentWorker: "enrollment_worker",
	WindowMonitor:    "window_monitor",
}
