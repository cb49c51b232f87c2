package reconcile

import (
	"encoding/json"
	"errors"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"libreg/internal/library/models"
	dErrors "libreg/pkg/domain-errors"
)

const (
	negativeCollectionSize  = "Collection size cannot be negative."
	malformedCollectionSize = "'collection_size' must be a number or an object mapping language codes to numbers"
)

var (
	errNegative  = errors.New("negative")
	errMalformed = errors.New("malformed")
)

// CollectionSize replaces lib's collection summaries with declared, which is
// nil, a single size, or an object mapping language codes to sizes.
//
// Language codes and English language names are normalised to ISO-639-2.
// Keys that cannot be recognised are summed into the unknown-language bucket.
func CollectionSize(lib *models.Library, declared any) error {
	sizes := make(map[string]int64)
	switch d := declared.(type) {
	case nil:
	case map[string]any:
		for key, value := range d {
			n, err := parseSize(value)
			if err != nil {
				return collectionSizeProblem(err)
			}
			lang := normalizeLanguage(key)
			if sizes[lang] > math.MaxInt64-n {
				return collectionSizeProblem(errMalformed)
			}
			sizes[lang] += n
		}
	default:
		n, err := parseSize(declared)
		if err != nil {
			return collectionSizeProblem(err)
		}
		sizes[""] = n
	}

	var next []models.CollectionSummary
	for _, summary := range lib.CollectionSummaries {
		size, ok := sizes[summary.Language]
		if !ok {
			continue
		}
		summary.Size = size
		next = append(next, summary)
		delete(sizes, summary.Language)
	}
	for _, lang := range slices.Sorted(maps.Keys(sizes)) {
		next = append(next, models.CollectionSummary{Language: lang, Size: sizes[lang]})
	}
	lib.CollectionSummaries = next
	return nil
}

// parseSize accepts integers, fractional numbers (truncated) and numeric
// strings. Sizes that do not fit in an int64 are malformed.
func parseSize(value any) (int64, error) {
	var n int64
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			n = i
			break
		}
		f, err := v.Float64()
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, errMalformed
		}
		return truncate(f)
	case float64:
		return truncate(v)
	case int:
		n = int64(v)
	case int64:
		n = v
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, errMalformed
		}
		n = i
	default:
		return 0, errMalformed
	}
	if n < 0 {
		return 0, errNegative
	}
	return n, nil
}

// truncate converts f to an int64, rejecting values outside its range.
// float64(math.MaxInt64) rounds up to 2^63, so that bound is exclusive.
func truncate(f float64) (int64, error) {
	switch {
	case math.IsNaN(f):
		return 0, errMalformed
	case f <= -1:
		return 0, errNegative
	case f >= math.MaxInt64:
		return 0, errMalformed
	}
	return int64(math.Trunc(f)), nil
}

func collectionSizeProblem(err error) error {
	if errors.Is(err, errNegative) {
		return dErrors.New(dErrors.CodeCollectionSizeInvalid, negativeCollectionSize)
	}
	return dErrors.New(dErrors.CodeCollectionSizeInvalid, malformedCollectionSize)
}

// normalizeLanguage returns the ISO-639-2/T code for key, which may be a
// language code or an English language name. It returns "" when key names no
// language.
func normalizeLanguage(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	tag, err := language.Parse(key)
	if err != nil || tag == language.Und {
		return languageByName(key)
	}
	base, confidence := tag.Base()
	if confidence != language.Exact {
		return ""
	}
	return base.ISO3()
}

var (
	languageNamesOnce sync.Once
	languageNames     map[string]string
)

// languageByName looks up an English language name such as "Spanish",
// ignoring case.
func languageByName(name string) string {
	languageNamesOnce.Do(func() {
		languageNames = make(map[string]string)
		namer := display.English.Languages()
		code := make([]byte, 3)
		for code[0] = 'a'; code[0] <= 'z'; code[0]++ {
			for code[1] = 'a'; code[1] <= 'z'; code[1]++ {
				for code[2] = 'a'; code[2] <= 'z'; code[2]++ {
					base, err := language.ParseBase(string(code))
					if err != nil {
						continue
					}
					tag, err := language.Compose(base)
					if err != nil {
						continue
					}
					english := strings.ToLower(namer.Name(tag))
					if english == "" {
						continue
					}
					if _, taken := languageNames[english]; !taken {
						languageNames[english] = base.ISO3()
					}
				}
			}
		}
	})
	return languageNames[strings.ToLower(name)]
}
