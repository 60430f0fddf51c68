package service

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespace   = regexp.MustCompile(`\s+`)
	slugHyphenRuns   = regexp.MustCompile(`-+`)
)

// Slugify выводит URL-безопасный идентификатор из введенного пользователем имени:
// нижний регистр, удаление символов вне [a-z0-9\s-], схлопывание пробелов
// и повторных дефисов в один дефис, обрезка дефисов по краям.
// Уникальность slug здесь не гарантируется - она обеспечивается
// UNIQUE constraint при записи в CategoryRepository
func Slugify(name string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugInvalidChars.ReplaceAllString(slug, "")
	slug = slugWhitespace.ReplaceAllString(slug, "-")
	slug = slugHyphenRuns.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	if slug == "" {
		return "", fmt.Errorf("%w: name produces empty slug", ErrValidation)
	}

	return slug, nil
}
