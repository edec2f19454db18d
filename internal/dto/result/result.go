package result

// Result is the unified response envelope.
type Result struct {
	Success  bool        `json:"success"`
	ErrorMsg string      `json:"errorMsg,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

// Ok returns a success envelope without data.
func Ok() Result {
	return Result{Success: true}
}

// OkWithData returns a success envelope carrying data.
func OkWithData(data interface{}) Result {
	return Result{Success: true, Data: data}
}

// Fail returns a failure envelope with a message.
func Fail(msg string) Result {
	return Result{Success: false, ErrorMsg: msg}
}
