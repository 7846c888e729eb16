package errors

import "net/http"

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_005"
	ErrCodeTimeout            ErrorCode = "COMMON_006"
	ErrCodeValidation         ErrorCode = "COMMON_007"
	ErrCodeSerialization      ErrorCode = "COMMON_008"
	ErrCodeDatabaseError      ErrorCode = "COMMON_009"
	ErrCodeCacheError         ErrorCode = "COMMON_010"

	// CodeOK is the sentinel returned by GetCode for a nil error.
	CodeOK ErrorCode = "OK"
)

// Layer catalog error codes.
const (
	ErrCodeLayerNotFound      ErrorCode = "LYR_001"
	ErrCodeLayerConfigInvalid ErrorCode = "LYR_002"
	ErrCodeLayerAlreadyExists ErrorCode = "LYR_003"
	ErrCodeLayerEmpty         ErrorCode = "LYR_004"
)

// Fusion engine error codes.
const (
	ErrCodeFusionNoPrimaryLayer ErrorCode = "FUS_001"
	ErrCodeFusionInvalidMetric  ErrorCode = "FUS_002"
	ErrCodeFusionJobInvalid     ErrorCode = "FUS_003"
)

// Data source error codes.
const (
	ErrCodeDatasetNotFound    ErrorCode = "SRC_001"
	ErrCodeDatasetParseFailed ErrorCode = "SRC_002"
	ErrCodeSourceUnavailable  ErrorCode = "SRC_003"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,

	ErrCodeLayerNotFound:      http.StatusNotFound,
	ErrCodeLayerConfigInvalid: http.StatusBadRequest,
	ErrCodeLayerAlreadyExists: http.StatusConflict,
	ErrCodeLayerEmpty:         http.StatusUnprocessableEntity,

	ErrCodeFusionNoPrimaryLayer: http.StatusBadRequest,
	ErrCodeFusionInvalidMetric:  http.StatusBadRequest,
	ErrCodeFusionJobInvalid:     http.StatusBadRequest,

	ErrCodeDatasetNotFound:    http.StatusNotFound,
	ErrCodeDatasetParseFailed: http.StatusBadGateway,
	ErrCodeSourceUnavailable:  http.StatusServiceUnavailable,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",

	ErrCodeLayerNotFound:      "layer not found",
	ErrCodeLayerConfigInvalid: "invalid layer configuration",
	ErrCodeLayerAlreadyExists: "layer already exists",
	ErrCodeLayerEmpty:         "layer contains no valid features",

	ErrCodeFusionNoPrimaryLayer: "fusion requires a primary layer",
	ErrCodeFusionInvalidMetric:  "invalid fusion metric",
	ErrCodeFusionJobInvalid:     "invalid fusion job",

	ErrCodeDatasetNotFound:    "dataset not found",
	ErrCodeDatasetParseFailed: "failed to parse dataset",
	ErrCodeSourceUnavailable:  "data source unavailable",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError reports whether the ErrorCode maps to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError reports whether the ErrorCode maps to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}
