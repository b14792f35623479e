package utils_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/taskscript/internal/utils"
)

const (
	testDiagnosticMessageConstant = "diagnostic_sample"
	testConsoleMessageConstant    = "console_sample"
)

// captureStandardError redirects os.Stderr while build runs so loggers bind to the pipe.
func captureStandardError(testInstance *testing.T, build func() (utils.LoggerOutputs, error), emit func(utils.LoggerOutputs)) (utils.LoggerOutputs, string, error) {
	testInstance.Helper()
	pipeReader, pipeWriter, pipeError := os.Pipe()
	require.NoError(testInstance, pipeError)

	originalStandardError := os.Stderr
	os.Stderr = pipeWriter
	outputs, buildError := build()
	os.Stderr = originalStandardError

	if buildError == nil {
		emit(outputs)
	}
	require.NoError(testInstance, pipeWriter.Close())
	captured, readError := io.ReadAll(pipeReader)
	require.NoError(testInstance, readError)
	require.NoError(testInstance, pipeReader.Close())
	return outputs, string(bytes.TrimSpace(captured)), buildError
}

func TestLoggerFactoryCreatesOutputs(testInstance *testing.T) {
	testCases := []struct {
		name            string
		logLevel        utils.LogLevel
		logFormat       utils.LogFormat
		expectError     bool
		expectJSON      bool
		expectConsole   bool
		expectDiagnosed bool
	}{
		{name: "structured_debug", logLevel: utils.LogLevelDebug, logFormat: utils.LogFormatStructured, expectJSON: true, expectDiagnosed: true},
		{name: "structured_info", logLevel: utils.LogLevelInfo, logFormat: utils.LogFormatStructured, expectJSON: true, expectDiagnosed: true},
		{name: "console_info", logLevel: utils.LogLevelInfo, logFormat: utils.LogFormatConsole, expectConsole: true, expectDiagnosed: true},
		{name: "structured_error_suppresses_info", logLevel: utils.LogLevelError, logFormat: utils.LogFormatStructured},
		{name: "mixed_case_values", logLevel: utils.LogLevel(" Info "), logFormat: utils.LogFormat("CONSOLE"), expectConsole: true, expectDiagnosed: true},
		{name: "unsupported_level", logLevel: utils.LogLevel("verbose"), logFormat: utils.LogFormatStructured, expectError: true},
		{name: "unsupported_format", logLevel: utils.LogLevelInfo, logFormat: utils.LogFormat("xml"), expectError: true},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			factory := utils.NewLoggerFactory()
			outputs, captured, creationError := captureStandardError(testInstance, func() (utils.LoggerOutputs, error) {
				return factory.CreateLoggerOutputs(testCase.logLevel, testCase.logFormat)
			}, func(outputs utils.LoggerOutputs) {
				outputs.DiagnosticLogger.Info(testDiagnosticMessageConstant)
				_ = outputs.DiagnosticLogger.Sync()
				outputs.ConsoleLogger.Info(testConsoleMessageConstant)
				_ = outputs.ConsoleLogger.Sync()
			})

			if testCase.expectError {
				require.Error(testInstance, creationError)
				require.Zero(testInstance, outputs)
				return
			}
			require.NoError(testInstance, creationError)
			require.NotNil(testInstance, outputs.DiagnosticLogger)
			require.NotNil(testInstance, outputs.ConsoleLogger)

			if !testCase.expectDiagnosed {
				require.Empty(testInstance, captured)
				return
			}
			require.Contains(testInstance, captured, testDiagnosticMessageConstant)
			if testCase.expectConsole {
				require.Contains(testInstance, captured, testConsoleMessageConstant)
			} else {
				require.NotContains(testInstance, captured, testConsoleMessageConstant)
			}
			firstLine := bytes.Split([]byte(captured), []byte("\n"))[0]
			require.Equal(testInstance, testCase.expectJSON, json.Valid(firstLine))
		})
	}
}
