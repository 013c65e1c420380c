package templates

// ConfigScriptID is the element id the SPA reads its runtime config from.
const ConfigScriptID = "washoku-config"

// RuntimeConfig is handed to the SPA as embedded JSON.
type RuntimeConfig struct {
	SiteName      string   `json:"siteName"`
	MapsAPIKey    string   `json:"mapsApiKey,omitempty"`
	DefaultLocale string   `json:"defaultLocale"`
	Locale        string   `json:"locale"`
	Locales       []string `json:"locales"`
}

// ShellData holds the values rendered into the SPA document.
type ShellData struct {
	Lang   string
	Title  string
	Config RuntimeConfig
}
