package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// FirstYear is the earliest year with published papers.
	FirstYear Year = 2000
	// EndYear is the exclusive upper bound of the supported interval.
	EndYear Year = 2022
	// DefaultStartYear is used when no starting year is given.
	DefaultStartYear Year = 2017
	// PrefixCutoffYear is the first year whose papers use the COMP naming scheme.
	PrefixCutoffYear Year = 2021

	// DefaultIndexBase is the root under which every year's index page lives.
	DefaultIndexBase = "https://exams.doc.ic.ac.uk/pastpapers/"
)

var (
	ErrInvalidYear     = errors.New("not a calendar year")
	ErrYearOutOfRange  = errors.New("year out of range")
	ErrInvalidCategory = errors.New("invalid category")
)

// Year identifies an academic year by the calendar year it ends in.
type Year int

// Label formats the year as "prev-curr", e.g. 2020 -> "19-20".
func (y Year) Label() string {
	curr := int(y) % 100
	prev := curr - 1
	if curr == 0 {
		prev = 99
	}
	return fmt.Sprintf("%02d-%02d", prev, curr)
}

// IndexURL returns the index page for the year under base.
func (y Year) IndexURL(base string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "papers." + y.Label() + "/"
}

// Category selects which filename prefix scheme applies.
type Category string

const (
	CategoryFirstYear  Category = "y1"
	CategorySecondYear Category = "y2"
)

type prefixPair struct {
	old, new string
}

var categoryPrefixes = map[Category]prefixPair{
	CategoryFirstYear:  {old: "C1", new: "COMP4"},
	CategorySecondYear: {old: "C2", new: "COMP5"},
}

// ParseCategory accepts "y1" or "y2", case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := categoryPrefixes[c]; !ok {
		return "", fmt.Errorf("%w: %q (want %s or %s)", ErrInvalidCategory, s, CategoryFirstYear, CategorySecondYear)
	}
	return c, nil
}

// PrefixFor returns the filename prefix used for a category's papers in a given year.
func PrefixFor(y Year, c Category) string {
	p, ok := categoryPrefixes[c]
	if !ok {
		p = categoryPrefixes[CategoryFirstYear]
	}
	if y < PrefixCutoffYear {
		return p.old
	}
	return p.new
}

// ParseYear parses a starting year and checks it is inside [FirstYear, EndYear).
func ParseYear(s string) (Year, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidYear, s)
	}
	y := Year(n)
	if !y.Supported() {
		return 0, fmt.Errorf("%w: papers are not available for %d, available years are %d to %d",
			ErrYearOutOfRange, n, FirstYear, EndYear-1)
	}
	return y, nil
}

// Supported reports whether y lies in [FirstYear, EndYear).
func (y Year) Supported() bool {
	return y >= FirstYear && y < EndYear
}

// YearRange returns every year in [start, EndYear).
func YearRange(start Year) []Year {
	var years []Year
	for y := start; y < EndYear; y++ {
		years = append(years, y)
	}
	return years
}
