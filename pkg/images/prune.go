package images

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/models"
	"github.com/hanamal24/site-sync/pkg/storage"
	"github.com/hanamal24/site-sync/pkg/utils"
)

// PruneReport summarizes a prune pass over the images directory
type PruneReport struct {
	Orphans        []string `json:"orphans"`        // Files no registry entry references
	Removed        []string `json:"removed"`        // Orphans actually deleted
	DroppedSlots   int      `json:"droppedSlots"`   // Slot entries whose file was missing
	DroppedContent int      `json:"droppedContent"` // Content entries whose file was missing
}

// DuplicateGroup lists files in the images directory with identical bytes
type DuplicateGroup struct {
	ContentHash string   `json:"contentHash"`
	Files       []string `json:"files"` // Sorted; the first is the one to keep
}

// referencedFiles returns the set of filenames referenced by the registry
func referencedFiles(doc models.RegistryDocument) map[string]struct{} {
	refs := make(map[string]struct{}, len(doc.BySlotKey)+len(doc.ByContentHash))
	for _, e := range doc.BySlotKey {
		refs[e.Filename] = struct{}{}
	}
	for _, e := range doc.ByContentHash {
		refs[e.Filename] = struct{}{}
	}
	return refs
}

// listImageFiles returns the regular, non-hidden files in dir
func listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read images dir %s: %w", utils.ErrFilesystem, dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// FindOrphans lists files in imagesDir that no registry entry references
func FindOrphans(imagesDir string, registry *storage.Registry) ([]string, error) {
	names, err := listImageFiles(imagesDir)
	if err != nil {
		return nil, err
	}
	refs := referencedFiles(registry.Snapshot())
	var orphans []string
	for _, n := range names {
		if _, ok := refs[n]; !ok {
			orphans = append(orphans, n)
		}
	}
	return orphans, nil
}

// RemoveOrphans deletes unreferenced files (unless dryRun) and drops registry
// entries whose file no longer exists. The caller flushes the registry.
func RemoveOrphans(imagesDir string, registry *storage.Registry, dryRun bool, log *logrus.Entry) (*PruneReport, error) {
	orphans, err := FindOrphans(imagesDir, registry)
	if err != nil {
		return nil, err
	}
	report := &PruneReport{Orphans: orphans}

	if !dryRun && len(orphans) > 0 {
		if err := checkPruneSafe(registry); err != nil {
			return report, err
		}
	}

	if !dryRun {
		for _, name := range orphans {
			if err := os.Remove(filepath.Join(imagesDir, name)); err != nil {
				log.Warnf("Could not remove orphan %s: %v", name, err)
				continue
			}
			report.Removed = append(report.Removed, name)
		}
	}

	exists := func(name string) bool {
		return name != "" && utils.FileExists(filepath.Join(imagesDir, name))
	}
	if dryRun {
		doc := registry.Snapshot()
		for _, e := range doc.BySlotKey {
			if !exists(e.Filename) {
				report.DroppedSlots++
			}
		}
		for _, e := range doc.ByContentHash {
			if !exists(e.Filename) {
				report.DroppedContent++
			}
		}
	} else {
		report.DroppedSlots, report.DroppedContent = registry.Prune(exists)
	}

	log.WithFields(logrus.Fields{
		"orphans":         len(report.Orphans),
		"removed":         len(report.Removed),
		"dropped_slots":   report.DroppedSlots,
		"dropped_content": report.DroppedContent,
		"dry_run":         dryRun,
	}).Info("Prune complete")
	return report, nil
}

// checkPruneSafe refuses deletion when the registry cannot vouch for the
// images directory: its snapshot was unreadable, or it holds no slots at all.
func checkPruneSafe(registry *storage.Registry) error {
	switch state := registry.LoadState(); state {
	case storage.LoadStateRecovered, storage.LoadStateNotLoaded:
		return fmt.Errorf("%w: image registry state is %s", utils.ErrUnsafePrune, state)
	}
	if registry.Stats().Slots == 0 {
		return fmt.Errorf("%w: image registry (%s) has no entries", utils.ErrUnsafePrune, registry.Stats().Backend)
	}
	return nil
}

// ScanDuplicateFiles groups files in imagesDir by MD5 of their bytes and
// returns the groups with more than one file.
func ScanDuplicateFiles(imagesDir string) ([]DuplicateGroup, error) {
	names, err := listImageFiles(imagesDir)
	if err != nil {
		return nil, err
	}
	byHash := make(map[string][]string)
	for _, n := range names {
		hash, err := utils.CalculateFileMD5(filepath.Join(imagesDir, n))
		if err != nil {
			return nil, err
		}
		byHash[hash] = append(byHash[hash], n)
	}

	var groups []DuplicateGroup
	for hash, files := range byHash {
		if len(files) > 1 {
			groups = append(groups, DuplicateGroup{ContentHash: hash, Files: files})
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Files[0] < groups[j].Files[0] })
	return groups, nil
}
