package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/scmhooks/jenkins-notifier/internal/bitbucket"
	"github.com/scmhooks/jenkins-notifier/internal/notifier"
	"github.com/scmhooks/jenkins-notifier/internal/permission"
	"github.com/scmhooks/jenkins-notifier/internal/settings"
)

// Response is the envelope every command prints
type Response struct {
	Success  bool             `json:"success"`
	Data     any              `json:"data,omitempty"`
	Metadata ResponseMetadata `json:"metadata"`
	Error    *ErrorInfo       `json:"error,omitempty"`
}

// ResponseMetadata contains metadata about the response
type ResponseMetadata struct {
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Command    string    `json:"command,omitempty"`
	Version    string    `json:"version,omitempty"`
}

// ErrorInfo contains error information
type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// Texter is implemented by command results with a human-readable rendering
type Texter interface {
	Text() string
}

// Formatter handles output formatting for different output types
type Formatter interface {
	Format(response *Response) (string, error)
}

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	Pretty bool
}

// Format formats the response as JSON
func (f *JSONFormatter) Format(response *Response) (string, error) {
	var data []byte
	var err error

	if f.Pretty {
		data, err = json.MarshalIndent(response, "", "  ")
	} else {
		data, err = json.Marshal(response)
	}

	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return string(data), nil
}

// TextFormatter formats output as human-readable text
type TextFormatter struct{}

// Format formats the response as human-readable text
func (f *TextFormatter) Format(response *Response) (string, error) {
	if !response.Success {
		return formatError(response.Error), nil
	}

	switch data := response.Data.(type) {
	case string:
		return data, nil
	case Texter:
		return data.Text(), nil
	default:
		jsonData, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", data), nil
		}
		return string(jsonData), nil
	}
}

func formatError(err *ErrorInfo) string {
	if err == nil {
		return "Unknown error"
	}

	result := fmt.Sprintf("Error [%s]: %s", err.Code, err.Message)
	if err.Details != "" {
		result += fmt.Sprintf("\nDetails: %s", err.Details)
	}
	return result
}

// NewFormatter creates a formatter for "json" or "text"; anything else is JSON
func NewFormatter(format string, pretty bool) Formatter {
	if format == "text" {
		return &TextFormatter{}
	}
	return &JSONFormatter{Pretty: pretty}
}

// errorCode classifies err for the response envelope
func errorCode(err error) string {
	var cfgErr *notifier.ConfigError
	var valErr *settings.ValidationError
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &valErr):
		return "CONFIG_ERROR"
	case errors.Is(err, bitbucket.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, permission.ErrDenied):
		return "PERMISSION_DENIED"
	default:
		return "COMMAND_ERROR"
	}
}

// ExecuteCommand runs fn and writes its result wrapped in a Response to out.
// Progress lines go to diag.
func ExecuteCommand(out, diag io.Writer, format, command string, fn func() (any, error)) error {
	startTime := time.Now()
	fmt.Fprintf(diag, "[jenkins-notifier] Executing: %s\n", command)

	response := &Response{
		Success: true,
		Metadata: ResponseMetadata{
			Timestamp: startTime,
			Command:   command,
			Version:   version,
		},
	}

	data, err := fn()
	response.Metadata.DurationMs = time.Since(startTime).Milliseconds()

	if err != nil {
		response.Success = false
		response.Error = &ErrorInfo{
			Message: err.Error(),
			Code:    errorCode(err),
		}
	} else {
		response.Data = data
	}

	fmt.Fprintf(diag, "[jenkins-notifier] %s completed in %dms (success=%v)\n",
		command, response.Metadata.DurationMs, response.Success)

	output, ferr := NewFormatter(format, true).Format(response)
	if ferr != nil {
		return fmt.Errorf("failed to format output: %w", ferr)
	}
	fmt.Fprintln(out, output)

	if err != nil {
		return fmt.Errorf("%s failed: %w", command, err)
	}
	return nil
}
