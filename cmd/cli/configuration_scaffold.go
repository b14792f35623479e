package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	scaffoldScopeLocalConstant                = "local"
	scaffoldScopeUserConstant                 = "user"
	scaffoldUnknownScopeTemplateConstant      = "unsupported initialization scope %q (expected local or user)"
	scaffoldLocationErrorTemplateConstant     = "unable to resolve %s configuration location: %w"
	scaffoldEmptyContentMessageConstant       = "embedded configuration content is unavailable"
	scaffoldDirectoryErrorTemplateConstant    = "unable to prepare configuration directory %s: %w"
	scaffoldNotDirectoryTemplateConstant      = "configuration directory path %s is not a directory"
	scaffoldExistingFileTemplateConstant      = "configuration file already exists at %s (use --force to overwrite)"
	scaffoldTargetIsDirectoryTemplateConstant = "configuration path %s is a directory"
	scaffoldWriteErrorTemplateConstant        = "unable to write configuration file %s: %w"
	scaffoldDirectoryPermissionConstant       = 0o755
	scaffoldFilePermissionConstant            = 0o600
)

// configurationScaffold writes the embedded defaults into a local or per-user configuration file.
type configurationScaffold struct {
	workingDirectory func() (string, error)
	homeDirectory    func() (string, error)
	overwrite        bool
}

func newConfigurationScaffold(overwrite bool) configurationScaffold {
	return configurationScaffold{
		workingDirectory: os.Getwd,
		homeDirectory:    os.UserHomeDir,
		overwrite:        overwrite,
	}
}

// destination maps a scope onto the configuration file it creates.
func (scaffold configurationScaffold) destination(scope string) (string, error) {
	normalizedScope := strings.ToLower(strings.TrimSpace(scope))
	switch normalizedScope {
	case "", scaffoldScopeLocalConstant:
		directory, directoryError := scaffold.workingDirectory()
		if directoryError != nil {
			return "", fmt.Errorf(scaffoldLocationErrorTemplateConstant, scaffoldScopeLocalConstant, directoryError)
		}
		return filepath.Join(directory, configurationFileNameConstant), nil
	case scaffoldScopeUserConstant:
		directory, directoryError := scaffold.homeDirectory()
		if directoryError != nil {
			return "", fmt.Errorf(scaffoldLocationErrorTemplateConstant, scaffoldScopeUserConstant, directoryError)
		}
		return filepath.Join(directory, userConfigurationDirectoryNameConstant, configurationFileNameConstant), nil
	default:
		return "", fmt.Errorf(scaffoldUnknownScopeTemplateConstant, strings.TrimSpace(scope))
	}
}

// write creates filePath with content. An existing file is replaced only when overwrite is set.
func (scaffold configurationScaffold) write(filePath string, content []byte) error {
	if len(content) == 0 {
		return errors.New(scaffoldEmptyContentMessageConstant)
	}

	if directoryError := ensureDirectory(filepath.Dir(filePath)); directoryError != nil {
		return directoryError
	}

	existing, statError := os.Stat(filePath)
	switch {
	case statError == nil && existing.IsDir():
		return fmt.Errorf(scaffoldTargetIsDirectoryTemplateConstant, filePath)
	case statError == nil && !scaffold.overwrite:
		return fmt.Errorf(scaffoldExistingFileTemplateConstant, filePath)
	case statError != nil && !errors.Is(statError, os.ErrNotExist):
		return fmt.Errorf(scaffoldWriteErrorTemplateConstant, filePath, statError)
	}

	if writeError := os.WriteFile(filePath, content, scaffoldFilePermissionConstant); writeError != nil {
		return fmt.Errorf(scaffoldWriteErrorTemplateConstant, filePath, writeError)
	}
	return nil
}

func ensureDirectory(directoryPath string) error {
	info, statError := os.Stat(directoryPath)
	if statError == nil {
		if !info.IsDir() {
			return fmt.Errorf(scaffoldNotDirectoryTemplateConstant, directoryPath)
		}
		return nil
	}
	if !errors.Is(statError, os.ErrNotExist) {
		return fmt.Errorf(scaffoldDirectoryErrorTemplateConstant, directoryPath, statError)
	}
	if createError := os.MkdirAll(directoryPath, scaffoldDirectoryPermissionConstant); createError != nil {
		return fmt.Errorf(scaffoldDirectoryErrorTemplateConstant, directoryPath, createError)
	}
	return nil
}
