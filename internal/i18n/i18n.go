// Package i18n negotiates the reader's language and resolves user-facing
// messages in Japanese or English.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Key identifies a translatable message.
type Key string

const (
	AuthRequired       Key = "auth.required"
	AdminRequired      Key = "auth.admin_required"
	InvalidCredentials Key = "auth.invalid_credentials"
	NotAdmin           Key = "auth.not_admin"
	UsernameTaken      Key = "auth.username_taken"
	EmailTaken         Key = "auth.email_taken"
	LoggedOut          Key = "auth.logged_out"
	ArticleNotFound    Key = "article.not_found"
	ArticleDeleted     Key = "article.deleted"
	DuplicateSlug      Key = "article.duplicate_slug"
	RestaurantNotFound Key = "restaurant.not_found"
	BookmarkRemoved    Key = "bookmark.removed"
	InvalidEmail       Key = "newsletter.invalid_email"
	InvalidInput       Key = "request.invalid"
	RateLimited        Key = "request.rate_limited"
	ExcerptUnavailable Key = "excerpt.unavailable"
	NotFound           Key = "request.not_found"
	InternalError      Key = "server.internal"
)

// Japanese is the site default; English is offered to readers who ask for it.
var supported = []language.Tag{language.Japanese, language.English}

var matcher = language.NewMatcher(supported)

var translations = map[Key][2]string{
	AuthRequired:       {"ログインが必要です", "You need to sign in first."},
	AdminRequired:      {"管理者権限が必要です", "Admin access is required."},
	InvalidCredentials: {"ユーザー名またはパスワードが正しくありません", "Incorrect username or password."},
	NotAdmin:           {"管理者権限がありません", "This account does not have admin access."},
	UsernameTaken:      {"このユーザー名は既に使用されています", "That username is already taken."},
	EmailTaken:         {"このメールアドレスは既に使用されています", "That email address is already registered."},
	LoggedOut:          {"ログアウトしました", "Signed out."},
	ArticleNotFound:    {"記事が見つかりません", "Article not found."},
	ArticleDeleted:     {"記事を削除しました", "Article deleted."},
	DuplicateSlug:      {"このスラッグは既に使用されています", "That slug is already in use."},
	RestaurantNotFound: {"レストランが見つかりません", "Restaurant not found."},
	BookmarkRemoved:    {"ブックマークを削除しました", "Bookmark removed."},
	InvalidEmail:       {"有効なメールアドレスを入力してください", "Please enter a valid email address."},
	InvalidInput:       {"入力内容に誤りがあります", "The request contains invalid data."},
	RateLimited:        {"リクエストが多すぎます。しばらくしてから再度お試しください", "Too many requests. Please wait a moment and try again."},
	ExcerptUnavailable: {"抜粋の自動生成は現在利用できません", "Excerpt drafting is not available right now."},
	NotFound:           {"ページが見つかりません", "Not found."},
	InternalError:      {"サーバーエラーが発生しました", "Something went wrong on our side."},
}

var printers = buildPrinters()

func buildPrinters() map[language.Tag]*message.Printer {
	builder := catalog.NewBuilder(catalog.Fallback(language.Japanese))
	for key, texts := range translations {
		// The table is static; SetString only fails on malformed tags.
		_ = builder.SetString(language.Japanese, string(key), texts[0])
		_ = builder.SetString(language.English, string(key), texts[1])
	}

	result := make(map[language.Tag]*message.Printer, len(supported))
	for _, tag := range supported {
		result[tag] = message.NewPrinter(tag, message.Catalog(builder))
	}
	return result
}

// Default is the language used when the reader expresses no preference.
func Default() language.Tag {
	return language.Japanese
}

// Supported lists the offered languages as BCP 47 strings, default first.
func Supported() []string {
	tags := make([]string, 0, len(supported))
	for _, tag := range supported {
		tags = append(tags, tag.String())
	}
	return tags
}

// Negotiate picks the best supported language for an Accept-Language header.
func Negotiate(acceptLanguage string) language.Tag {
	if acceptLanguage == "" {
		return Default()
	}

	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Default()
	}

	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return Default()
	}
	return supported[index]
}

// Text resolves a message for the given language, falling back to Japanese.
func Text(tag language.Tag, key Key) string {
	printer, ok := printers[tag]
	if !ok {
		printer = printers[Default()]
	}
	return printer.Sprintf(string(key))
}
