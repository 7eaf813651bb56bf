// Command validate provides a small CLI that validates question set files
// (*.json, *.yaml, *.yml) in a catalog directory. It checks:
//   - File structure and supported extension
//   - Set id, question ids, text and answers are present
//   - Question ids are unique within the set and across the whole catalog
//   - Set ids are unique across files
//   - Points and time limits are not negative
//   - Multiple choice answers are one of the choices
//
// Usage:
//
//	go run ./validate [catalog-dir]
//
// The directory defaults to ../configs/catalog.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/quizrooms/game/catalog"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Messages contains informational lines; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File     string
	Valid    bool
	Messages []string

	set *catalog.QuestionSet
}

// validateSet loads and validates a single question set file.
func validateSet(filePath string) ValidationResult {
	result := ValidationResult{
		File:     filepath.Base(filePath),
		Valid:    true,
		Messages: []string{},
	}

	set, err := catalog.ParseFile(filePath)
	if err != nil {
		result.Valid = false
		result.Messages = append(result.Messages, strings.Split(err.Error(), "\n")...)
		return result
	}
	result.set = set

	timed := 0
	multipleChoice := 0
	for _, q := range set.Questions {
		if q.TimeLimitMs > 0 {
			timed++
		}
		if len(q.Choices) > 0 {
			multipleChoice++
		}
	}

	result.Messages = append(result.Messages,
		fmt.Sprintf("✓ Set %q: %d questions", set.ID, len(set.Questions)),
		fmt.Sprintf("✓ %d multiple choice, %d timed", multipleChoice, timed),
	)
	return result
}

// checkCatalog flags set ids and question ids that collide across files.
// Results for the files involved are marked invalid.
func checkCatalog(results []ValidationResult) {
	setOwner := make(map[string]int)
	questionOwner := make(map[string]int)

	for i := range results {
		set := results[i].set
		if set == nil {
			continue
		}

		if j, exists := setOwner[set.ID]; exists {
			results[i].Valid = false
			results[i].Messages = append(results[i].Messages,
				fmt.Sprintf("Set id %q already defined by %s", set.ID, results[j].File))
		} else {
			setOwner[set.ID] = i
		}

		for _, q := range set.Questions {
			if j, exists := questionOwner[q.ID]; exists && j != i {
				results[i].Valid = false
				results[i].Messages = append(results[i].Messages,
					fmt.Sprintf("Question id %q already used in %s", q.ID, results[j].File))
				continue
			}
			questionOwner[q.ID] = i
		}
	}
}

func validateDir(dir string) ([]ValidationResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && catalog.IsSetFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	results := make([]ValidationResult, 0, len(files))
	for _, file := range files {
		results = append(results, validateSet(file))
	}
	checkCatalog(results)
	return results, nil
}

// main validates every question set in the catalog directory, printing a
// concise report and exiting with non-zero status if any are invalid.
func main() {
	catalogDir := "../configs/catalog"
	if len(os.Args) > 1 {
		catalogDir = os.Args[1]
	}

	results, err := validateDir(catalogDir)
	if err != nil {
		fmt.Printf("Error reading catalog directory: %v\n", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Printf("No question sets found in %s\n", catalogDir)
		os.Exit(1)
	}

	allValid := true
	for _, result := range results {
		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Messages {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, msg := range result.Messages {
				if !strings.HasPrefix(msg, "✓") {
					fmt.Println("  ❌ " + msg)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All question sets are valid!")
	} else {
		fmt.Println("❌ Some question sets have errors")
		os.Exit(1)
	}
}
