package update

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"
)

// CurrentBinaryPath resolves the path of the running executable with
// symlinks followed, so the real file gets replaced.
func CurrentBinaryPath() (string, error) {
	path, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlinks: %w", err)
	}
	return resolved, nil
}

// BackupCurrent copies the running binary to the previous-binary slot.
func BackupCurrent() error {
	current, err := CurrentBinaryPath()
	if err != nil {
		return err
	}
	if err := EnsureUpdateDir(); err != nil {
		return err
	}
	if err := copyFile(current, PreviousBinaryPath()); err != nil {
		return fmt.Errorf("failed to back up current binary: %w", err)
	}
	return os.Chmod(PreviousBinaryPath(), 0755)
}

// ApplyUpdate swaps newBinary into the running binary's place. The old
// binary is backed up first and restored if the new one fails validation.
func ApplyUpdate(newBinary string) error {
	current, err := CurrentBinaryPath()
	if err != nil {
		return err
	}

	if err := ValidateBinary(newBinary); err != nil {
		return fmt.Errorf("new binary failed validation: %w", err)
	}

	if err := BackupCurrent(); err != nil {
		return err
	}

	if err := atomicReplace(newBinary, current); err != nil {
		if rbErr := copyFile(PreviousBinaryPath(), current); rbErr != nil {
			return fmt.Errorf("replace failed (%v) and rollback failed: %w", err, rbErr)
		}
		return fmt.Errorf("failed to replace binary, rolled back: %w", err)
	}
	return nil
}

// Rollback restores the previously backed-up binary.
func Rollback() error {
	prev := PreviousBinaryPath()
	if _, err := os.Stat(prev); os.IsNotExist(err) {
		return fmt.Errorf("no previous version available")
	}

	current, err := CurrentBinaryPath()
	if err != nil {
		return err
	}

	if err := ValidateBinary(prev); err != nil {
		return fmt.Errorf("previous binary failed validation: %w", err)
	}

	staged := prev + ".staged"
	if err := copyFile(prev, staged); err != nil {
		return err
	}
	if err := os.Chmod(staged, 0755); err != nil {
		os.Remove(staged)
		return err
	}
	if err := atomicReplace(staged, current); err != nil {
		os.Remove(staged)
		return fmt.Errorf("failed to restore previous binary: %w", err)
	}
	return nil
}

// HasPreviousVersion reports whether a rollback target exists.
func HasPreviousVersion() bool {
	_, err := os.Stat(PreviousBinaryPath())
	return err == nil
}

// ValidateBinary runs the candidate with "version" to confirm it executes.
func ValidateBinary(path string) error {
	if err := os.Chmod(path, 0755); err != nil && runtime.GOOS != "windows" {
		return fmt.Errorf("failed to make binary executable: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("binary failed to run: %w", err)
	}
	return nil
}

// atomicReplace moves src over dst. On Unix a rename over the target is
// atomic; Windows cannot replace a running executable, so the old one is
// shuffled aside first.
func atomicReplace(src, dst string) error {
	if runtime.GOOS == "windows" {
		old := dst + ".old"
		os.Remove(old)
		if err := os.Rename(dst, old); err != nil {
			return err
		}
		if err := os.Rename(src, dst); err != nil {
			os.Rename(old, dst)
			return err
		}
		return nil
	}

	tmp := dst + ".tmp"
	if err := copyFile(src, tmp); err != nil {
		return err
	}
	if err := os.Chmod(tmp, 0755); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	os.Remove(src)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
