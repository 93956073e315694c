package filetransfer

import (
	"os"

	"github.com/BioHazard786/Warpcall/internal/utils"
)

// Save writes a received file into dir without overwriting anything and
// returns the path it chose.
func Save(dir string, f File) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", NewFileError("create output dir", f.Name, err)
	}

	path := utils.GetUniqueFilename(dir, f.Name)
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return "", NewFileError("write", f.Name, err)
	}
	return path, nil
}
