package errors

import "sync"

var (
	defaultHandler *ErrorHandler
	defaultErr     error
	once           sync.Once
)

// GetDefaultHandler returns the process-wide handler, creating it on first use.
func GetDefaultHandler() (*ErrorHandler, error) {
	once.Do(func() {
		defaultHandler, defaultErr = NewErrorHandler()
	})
	return defaultHandler, defaultErr
}

// HandleError reports err through the default handler. It returns false when
// no handler could be created, leaving the caller to print err itself.
func HandleError(err error) bool {
	handler, handlerErr := GetDefaultHandler()
	if handlerErr != nil {
		return false
	}
	handler.Handle(err)
	return true
}

// resetDefaultHandler resets the singleton for testing purposes
func resetDefaultHandler() {
	if defaultHandler != nil {
		_ = defaultHandler.Close()
	}
	defaultHandler = nil
	defaultErr = nil
	once = sync.Once{}
}
