package models

// Slot is a named display position on the site.
type Slot string

// Slot catalog. Homepage and article page, desktop and mobile variants.
const (
	SlotHomeBannerTop          Slot = "homepage-banner-top"
	SlotHomeBannerTopMobile    Slot = "homepage-banner-top-mobile"
	SlotHomeSidebarTop         Slot = "homepage-sidebar-top"
	SlotHomeSidebarBottom      Slot = "homepage-sidebar-bottom"
	SlotHomeBannerBottom       Slot = "homepage-banner-bottom"
	SlotHomeBannerBottomMobile Slot = "homepage-banner-bottom-mobile"
	SlotHomeInFeedMobile       Slot = "homepage-in-feed-mobile"
	SlotArticleBannerTop       Slot = "article-banner-top"
	SlotArticleBannerTopMobile Slot = "article-banner-top-mobile"
	SlotArticleInline          Slot = "article-inline"
	SlotArticleInlineMobile    Slot = "article-inline-mobile"
	SlotArticleSidebar         Slot = "article-sidebar"
	SlotArticleBannerBottom    Slot = "article-banner-bottom"
)

// SlotInfo describes a catalog entry for the admin UI.
type SlotInfo struct {
	Slot   Slot   `json:"slot"`
	Label  string `json:"label"`
	Page   string `json:"page"`
	Mobile bool   `json:"mobile"`
}

var slotCatalog = []SlotInfo{
	{SlotHomeBannerTop, "Homepage banner (top)", "homepage", false},
	{SlotHomeBannerTopMobile, "Homepage banner (top, mobile)", "homepage", true},
	{SlotHomeSidebarTop, "Homepage sidebar (top)", "homepage", false},
	{SlotHomeSidebarBottom, "Homepage sidebar (bottom)", "homepage", false},
	{SlotHomeBannerBottom, "Homepage banner (bottom)", "homepage", false},
	{SlotHomeBannerBottomMobile, "Homepage banner (bottom, mobile)", "homepage", true},
	{SlotHomeInFeedMobile, "Homepage in-feed (mobile)", "homepage", true},
	{SlotArticleBannerTop, "Article banner (top)", "article", false},
	{SlotArticleBannerTopMobile, "Article banner (top, mobile)", "article", true},
	{SlotArticleInline, "Article inline", "article", false},
	{SlotArticleInlineMobile, "Article inline (mobile)", "article", true},
	{SlotArticleSidebar, "Article sidebar", "article", false},
	{SlotArticleBannerBottom, "Article banner (bottom)", "article", false},
}

// Catalog returns a copy of the fixed slot catalog.
func Catalog() []SlotInfo {
	out := make([]SlotInfo, len(slotCatalog))
	copy(out, slotCatalog)
	return out
}

// Valid reports whether s belongs to the catalog.
func (s Slot) Valid() bool {
	for _, info := range slotCatalog {
		if info.Slot == s {
			return true
		}
	}
	return false
}
