package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"snipd/internal/snippet"
)

// GlobalVars reads the global variable list of the default match file.
// A missing default file yields an empty list.
func (s *Store) GlobalVars() ([]snippet.Variable, error) {
	snap, err := s.cache.Snapshot()
	if err != nil {
		return nil, err
	}

	known := snap.Ledger.File(filepath.Join(s.dir, s.defaultFile))
	if known == nil {
		return nil, nil
	}

	return known.File.GlobalVars()
}

// AddGlobalVar appends a global variable to the default match file. Fails
// with ErrDuplicateVariable when the name is already taken.
func (s *Store) AddGlobalVar(ctx context.Context, v snippet.Variable) error {
	if err := validateVar(&v); err != nil {
		return err
	}

	return s.mutateGlobalVars(ctx, "var-add", v.Name, func(vars []snippet.Variable) ([]snippet.Variable, error) {
		if indexOfVar(vars, v.Name) >= 0 {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateVariable, v.Name)
		}

		return append(vars, v), nil
	})
}

// UpdateGlobalVar replaces the named global variable in place. Fails with
// ErrVariableNotFound when the name does not exist.
func (s *Store) UpdateGlobalVar(ctx context.Context, v snippet.Variable) error {
	if err := validateVar(&v); err != nil {
		return err
	}

	return s.mutateGlobalVars(ctx, "var-update", v.Name, func(vars []snippet.Variable) ([]snippet.Variable, error) {
		pos := indexOfVar(vars, v.Name)
		if pos < 0 {
			return nil, fmt.Errorf("%w: %q", ErrVariableNotFound, v.Name)
		}

		vars[pos] = v

		return vars, nil
	})
}

// DeleteGlobalVar removes the named global variable. Fails with
// ErrVariableNotFound when the name does not exist.
func (s *Store) DeleteGlobalVar(ctx context.Context, name string) error {
	return s.mutateGlobalVars(ctx, "var-delete", name, func(vars []snippet.Variable) ([]snippet.Variable, error) {
		pos := indexOfVar(vars, name)
		if pos < 0 {
			return nil, fmt.Errorf("%w: %q", ErrVariableNotFound, name)
		}

		return slices.Delete(vars, pos, pos+1), nil
	})
}

// mutateGlobalVars rewrites the default file's global_vars section under
// the directory lock. The default file is created on demand so variables
// can be added to a fresh directory.
func (s *Store) mutateGlobalVars(ctx context.Context, op, name string, mutate func([]snippet.Variable) ([]snippet.Variable, error)) error {
	path := filepath.Join(s.dir, s.defaultFile)

	err := withDirLock(s.dir, func() error {
		file, fp, err := loadFresh(path)
		if err != nil {
			return err
		}

		vars, err := file.GlobalVars()
		if err != nil {
			return err
		}

		vars, err = mutate(vars)
		if err != nil {
			return err
		}

		if err := file.SetGlobalVars(vars); err != nil {
			return err
		}

		return s.writeFile(file, fp)
	})
	if err != nil {
		if errors.Is(err, errStale) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}

		return err
	}

	s.log.Info("global variables changed", "op", op, "name", name)
	s.afterMutation(ctx, op, "", path, "variable "+name)

	return nil
}

func indexOfVar(vars []snippet.Variable, name string) int {
	for i := range vars {
		if vars[i].Name == name {
			return i
		}
	}

	return -1
}

func validateVar(v *snippet.Variable) error {
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("%w: variable name must not be empty", ErrValidation)
	}

	if strings.TrimSpace(v.Type) == "" {
		return fmt.Errorf("%w: variable type must not be empty", ErrValidation)
	}

	return nil
}
