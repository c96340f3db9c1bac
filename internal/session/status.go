package session

type Status string

const (
	StatusIdle       Status = "idle"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusError      Status = "error"
	StatusSuccess    Status = "success"
)

func (s Status) String() string {
	return string(s)
}

// Busy reports whether an upload or generation is running.
func (s Status) Busy() bool {
	return s == StatusUploading || s == StatusProcessing
}
