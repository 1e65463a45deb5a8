package config

import (
	"fmt"
	"strings"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// OfferingsKey returns the cache key for the enriched offerings of a degree
func (r *CacheKeyStruct) OfferingsKey(degreeID, lang, term string) string {
	return fmt.Sprintf("offerings:%s:%s:%s", degreeID, lang, term)
}

// CurriculumKey returns the cache key for a degree curriculum page
func (r *CacheKeyStruct) CurriculumKey(acronym, term string) string {
	return fmt.Sprintf("curriculum:%s:%s", strings.ToLower(acronym), term)
}

// CourseNameKey returns the cache key for a course's name in a given language
func (r *CacheKeyStruct) CourseNameKey(courseID, lang string) string {
	return fmt.Sprintf("course:%s:name:%s", courseID, lang)
}

// RunReportKey returns the key holding the last report of a preference profile
func (r *CacheKeyStruct) RunReportKey(profile string) string {
	return fmt.Sprintf("run:%s:last_report", profile)
}

var CacheKey = NewCacheKeyStruct()
