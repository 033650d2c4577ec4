package importer

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"fitstogo/internal/store"
)

var sizePattern = regexp.MustCompile(`(?i)^(XS|S|M|L|XL|XXL|XXXL|2XL|3XL|4XL|5XL|Free Size|FREE SIZE|\d{2,3})$`)

type colorName struct {
	thai    string
	english string
}

// Substring scans walk this list in order and stop at the first match.
var thaiColors = []colorName{
	{"ดำ", "Black"}, {"ดํา", "Black"}, {"สีดำ", "Black"}, {"สีดํา", "Black"},
	{"ขาว", "White"}, {"สีขาว", "White"},
	{"แดง", "Red"}, {"สีแดง", "Red"},
	{"น้ำเงิน", "Navy"}, {"สีน้ำเงิน", "Navy"},
	{"ฟ้า", "Blue"}, {"สีฟ้า", "Blue"},
	{"เขียว", "Green"}, {"สีเขียว", "Green"},
	{"เขียวเข้ม", "Dark Green"}, {"สีเขียวเข้ม", "Dark Green"},
	{"เหลือง", "Yellow"}, {"สีเหลือง", "Yellow"},
	{"ส้ม", "Orange"}, {"สีส้ม", "Orange"},
	{"ชมพู", "Pink"}, {"สีชมพู", "Pink"},
	{"ม่วง", "Purple"}, {"สีม่วง", "Purple"},
	{"น้ำตาล", "Brown"}, {"สีน้ำตาล", "Brown"},
	{"เทา", "Gray"}, {"สีเทา", "Gray"},
	{"กากี", "Khaki"}, {"สีกากี", "Khaki"},
	{"ครีม", "Cream"}, {"สีครีม", "Cream"},
	{"เบจ", "Beige"}, {"สีเบจ", "Beige"},
	{"กรม", "Navy"}, {"สีกรม", "Navy"}, {"กรมท่า", "Navy"},
}

var thaiColorIndex = func() map[string]string {
	index := make(map[string]string, len(thaiColors))
	for _, c := range thaiColors {
		index[norm.NFC.String(c.thai)] = c.english
	}
	return index
}()

var englishColors = map[string]bool{
	"black": true, "white": true, "red": true, "blue": true, "green": true, "yellow": true,
	"pink": true, "purple": true, "orange": true, "brown": true, "gray": true, "grey": true,
	"navy": true, "beige": true, "cream": true, "khaki": true,
}

var titleCaser = cases.Title(language.English)

const maxVariantName = 255

// ParseVariants splits the pipe-separated model columns of a feed row into
// variants, extracting colour and size from each model name.
func ParseVariants(names, prices, ids string, fallbackPrice float64) []store.ProductVariant {
	if strings.TrimSpace(names) == "" {
		return nil
	}
	nameList := strings.Split(names, "|")
	var priceList, idList []string
	if prices != "" {
		priceList = strings.Split(prices, "|")
	}
	if ids != "" {
		idList = strings.Split(ids, "|")
	}

	variants := make([]store.ProductVariant, 0, len(nameList))
	for i, raw := range nameList {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		price := fallbackPrice
		if i < len(priceList) {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(priceList[i]), 64); err == nil && parsed != 0 {
				price = parsed
			}
		}
		var externalID string
		if i < len(idList) {
			externalID = strings.TrimSpace(idList[i])
		}
		color, size := classifyModel(name)
		variants = append(variants, store.ProductVariant{
			ExternalID: externalID,
			Name:       truncateRunes(name, maxVariantName),
			Color:      color,
			Size:       size,
			Price:      price,
			InStock:    true,
		})
	}
	return variants
}

func classifyModel(name string) (color, size string) {
	parts := strings.Split(name, ",")
	for _, raw := range parts {
		part := strings.TrimSpace(raw)
		if sizePattern.MatchString(part) {
			size = strings.ToUpper(part)
			continue
		}
		if english, ok := thaiColorIndex[norm.NFC.String(part)]; ok {
			color = english
			continue
		}
		if englishColors[strings.ToLower(part)] {
			color = titleCaser.String(strings.ToLower(part))
			continue
		}
		if len(parts) == 1 {
			normalized := norm.NFC.String(part)
			for _, c := range thaiColors {
				if strings.Contains(normalized, norm.NFC.String(c.thai)) {
					color = c.english
					break
				}
			}
		}
	}
	return color, size
}

// UniqueSizes returns the distinct variant sizes in first-seen order.
func UniqueSizes(variants []store.ProductVariant) []string {
	seen := make(map[string]bool)
	var sizes []string
	for _, v := range variants {
		if v.Size == "" || seen[v.Size] {
			continue
		}
		seen[v.Size] = true
		sizes = append(sizes, v.Size)
	}
	return sizes
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
