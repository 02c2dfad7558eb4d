package domain

import "strconv"

// Result is the error field carried in response and event headers.
// Values match the cs_error_t vocabulary clients already understand.
type Result int32

const (
	ResultOK                Result = 1
	ResultLibrary           Result = 2
	ResultVersion           Result = 3
	ResultInit              Result = 4
	ResultTimeout           Result = 5
	ResultTryAgain          Result = 6
	ResultInvalidParam      Result = 7
	ResultNoMemory          Result = 8
	ResultBadHandle         Result = 9
	ResultBusy              Result = 10
	ResultAccess            Result = 11
	ResultNotExist          Result = 12
	ResultNameTooLong       Result = 13
	ResultExist             Result = 14
	ResultNoSpace           Result = 15
	ResultInterrupt         Result = 16
	ResultNameNotFound      Result = 17
	ResultNoResources       Result = 18
	ResultNotSupported      Result = 19
	ResultBadOperation      Result = 20
	ResultFailedOperation   Result = 21
	ResultMessageError      Result = 22
	ResultQueueFull         Result = 23
	ResultQueueNotAvailable Result = 24
	ResultBadFlags          Result = 25
	ResultTooBig            Result = 26
	ResultNoSections        Result = 27
)

var resultNames = map[Result]string{
	ResultOK:                "OK",
	ResultLibrary:           "ERR_LIBRARY",
	ResultVersion:           "ERR_VERSION",
	ResultInit:              "ERR_INIT",
	ResultTimeout:           "ERR_TIMEOUT",
	ResultTryAgain:          "ERR_TRY_AGAIN",
	ResultInvalidParam:      "ERR_INVALID_PARAM",
	ResultNoMemory:          "ERR_NO_MEMORY",
	ResultBadHandle:         "ERR_BAD_HANDLE",
	ResultBusy:              "ERR_BUSY",
	ResultAccess:            "ERR_ACCESS",
	ResultNotExist:          "ERR_NOT_EXIST",
	ResultNameTooLong:       "ERR_NAME_TOO_LONG",
	ResultExist:             "ERR_EXIST",
	ResultNoSpace:           "ERR_NO_SPACE",
	ResultInterrupt:         "ERR_INTERRUPT",
	ResultNameNotFound:      "ERR_NAME_NOT_FOUND",
	ResultNoResources:       "ERR_NO_RESOURCES",
	ResultNotSupported:      "ERR_NOT_SUPPORTED",
	ResultBadOperation:      "ERR_BAD_OPERATION",
	ResultFailedOperation:   "ERR_FAILED_OPERATION",
	ResultMessageError:      "ERR_MESSAGE_ERROR",
	ResultQueueFull:         "ERR_QUEUE_FULL",
	ResultQueueNotAvailable: "ERR_QUEUE_NOT_AVAILABLE",
	ResultBadFlags:          "ERR_BAD_FLAGS",
	ResultTooBig:            "ERR_TOO_BIG",
	ResultNoSections:        "ERR_NO_SECTIONS",
}

// String returns the symbolic name of the result.
func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return "Result(" + strconv.Itoa(int(r)) + ")"
}

// Retryable reports whether a client should retry the request later.
func (r Result) Retryable() bool {
	return r == ResultTryAgain || r == ResultBusy || r == ResultQueueFull
}
