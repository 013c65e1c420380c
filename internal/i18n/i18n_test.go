package i18n

import (
	"testing"

	"golang.org/x/text/language"
)

func TestNegotiate(t *testing.T) {
	t.Parallel()

	cases := map[string]language.Tag{
		"":                         language.Japanese,
		"en-GB,en;q=0.9":           language.English,
		"ja-JP":                    language.Japanese,
		"fr-FR":                    language.Japanese,
		"fr;q=0.9, en;q=0.5":       language.English,
		"not a language header!!!": language.Japanese,
	}

	for header, expected := range cases {
		if got := Negotiate(header); got != expected {
			t.Errorf("Negotiate(%q) = %s, expected %s", header, got, expected)
		}
	}
}

func TestTextResolvesBothLanguages(t *testing.T) {
	t.Parallel()

	if got := Text(language.Japanese, NotAdmin); got != "管理者権限がありません" {
		t.Fatalf("unexpected japanese text %q", got)
	}

	if got := Text(language.English, AuthRequired); got != "You need to sign in first." {
		t.Fatalf("unexpected english text %q", got)
	}

	if got := Text(language.German, ArticleNotFound); got != "記事が見つかりません" {
		t.Fatalf("expected japanese fallback, got %q", got)
	}
}

func TestEveryKeyHasTranslations(t *testing.T) {
	t.Parallel()

	for key, texts := range translations {
		if texts[0] == "" || texts[1] == "" {
			t.Errorf("key %s is missing a translation", key)
		}
	}
}
