package extract

// Built-in selector tables for the supported platforms. Selector candidates
// are ordered: sites shuffle their markup between redesigns, so older
// selectors stay on as fallbacks.
var builtinTables = map[string]SelectorTable{
	"amazon": {
		Title:         []string{"#productTitle", "h1#title", "h1.a-size-large"},
		Price:         []string{"#corePrice_feature_div .a-offscreen", "span.a-price > span.a-offscreen", "#priceblock_ourprice", "#priceblock_dealprice"},
		PreviousPrice: []string{"span.a-price.a-text-price > span.a-offscreen", "#priceblock_listprice"},
		Image:         []string{"#landingImage", "#imgBlkFront"},
		Stock:         []string{"#availability span", "#availability"},
		Category:      []string{"#wayfinding-breadcrumbs_feature_div li:last-child a", "#nav-subnav .nav-a-content"},
		Features:      []string{"#feature-bullets li span.a-list-item", "#productOverview_feature_div tr"},
	},
	"ebay": {
		Title:         []string{"h1.x-item-title__mainTitle span", "h1#itemTitle"},
		Price:         []string{"div.x-price-primary span.ux-textspans", "span#prcIsum", "span#mm-saleDscPrc"},
		PreviousPrice: []string{"div.x-additional-info span.ux-textspans--STRIKETHROUGH", "span#orgPrc"},
		Image:         []string{"div.ux-image-carousel-item img", "img#icImg"},
		Stock:         []string{"div.x-quantity__availability span", "span#qtySubTxt"},
		Category:      []string{"nav.breadcrumbs li:last-child a", "li.bc-w a"},
		Features:      []string{"div.x-about-this-item li", "div.ux-layout-section--features .ux-labels-values__values"},
	},
	"walmart": {
		Title:         []string{`h1[itemprop="name"]`, "h1.prod-ProductTitle"},
		Price:         []string{`span[itemprop="price"]`, `div[data-testid="price-wrap"] span.f1`, "span.price-characteristic"},
		PreviousPrice: []string{`div[data-testid="price-wrap"] span.strike`, "span.price-old"},
		Image:         []string{`img[data-testid="hero-image"]`, "img.prod-hero-image-image"},
		Stock:         []string{`div[data-testid="fulfillment-badge"]`, "div.prod-blitz-copy-message"},
		Category:      []string{`nav[aria-label="breadcrumb"] li:last-child a`, "ol.breadcrumb li:last-child"},
		Features:      []string{`div[data-testid="product-description"] li`, "div.about-product-description li"},
	},
	"bestbuy": {
		Title:         []string{"h1.sku-title", "div.sku-title h1"},
		Price:         []string{`div[data-testid="customer-price"] span`, "div.priceView-customer-price span"},
		PreviousPrice: []string{`div[data-testid="regular-price"] span`, "div.pricing-price__regular-price"},
		Image:         []string{"img.primary-image", "div.primary-image-container img"},
		Stock:         []string{"button.add-to-cart-button", "div.fulfillment-add-to-cart-button"},
		Category:      []string{"nav.c-breadcrumbs li:last-child a"},
		Features:      []string{"div.feature-list li", "div.long-description-container li"},
	},
}

// genericTable probes common microdata, open-graph, and storefront-theme
// markup; it is the fallback for platforms without a dedicated table.
var genericTable = SelectorTable{
	Title:         []string{`[itemprop="name"]`, `meta[property="og:title"]`, "h1.product-title", "h1.product__title", "h1"},
	Price:         []string{`[itemprop="price"]`, `meta[property="product:price:amount"]`, "span.price", "div.price", "p.price", "span.product-price"},
	PreviousPrice: []string{"del span", "del", "s.price", "span.compare-at-price", "span.was-price"},
	Image:         []string{`[itemprop="image"]`, "img.product-image", "img.product__image"},
	Stock:         []string{`[itemprop="availability"]`, "p.stock", "span.stock-status", "div.availability"},
	Category:      []string{"nav.breadcrumb li:last-child a", "ol.breadcrumb li:last-child a"},
	Features:      []string{"div.product-description li", "div.product-features li", "ul.features li"},
}
