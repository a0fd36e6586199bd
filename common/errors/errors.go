package errors

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type ErrorType string

const (
	ErrorTypeConnection       ErrorType = "ConnectionError"
	ErrorTypeDecode           ErrorType = "DecodeError"
	ErrorTypeNotTrained       ErrorType = "NotTrainedError"
	ErrorTypeInsufficientData ErrorType = "InsufficientDataError"
	ErrorTypeArtifactNotFound ErrorType = "ArtifactNotFoundError"
	ErrorTypeArtifactCorrupt  ErrorType = "ArtifactCorruptError"
	ErrorTypeBadRequest       ErrorType = "BadRequest"
	ErrorTypeServerError      ErrorType = "ServerError"
	ErrorTypeUnknown          ErrorType = "Unknown"
)

type CommonAquaError struct {
	errorType ErrorType
	message   string
}

type AquaError interface {
	ErrorType() ErrorType
	Message() string
	IsErrorType(errorType ErrorType) bool
	Error() string
	ConvertToHTTPError() *echo.HTTPError
}

func (a CommonAquaError) ErrorType() ErrorType {
	return a.errorType
}

func (a CommonAquaError) Message() string {
	return a.message
}

func (a CommonAquaError) Error() string {
	return a.message
}

func (a CommonAquaError) IsErrorType(errorType ErrorType) bool {
	return errorType == a.errorType
}

func (a CommonAquaError) ConvertToHTTPError() *echo.HTTPError {
	return echo.NewHTTPError(errorTypeToCode(a.ErrorType()), a.Message())
}

func NewCommonAquaError(errorType ErrorType, message string) CommonAquaError {
	return CommonAquaError{errorType, message}
}

func errorTypeToCode(status ErrorType) int {
	switch status {
	case ErrorTypeBadRequest, ErrorTypeDecode, ErrorTypeInsufficientData:
		return http.StatusBadRequest
	case ErrorTypeArtifactNotFound:
		return http.StatusNotFound
	case ErrorTypeNotTrained:
		return http.StatusConflict
	case ErrorTypeConnection:
		return http.StatusBadGateway
	case ErrorTypeServerError, ErrorTypeArtifactCorrupt, ErrorTypeUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
