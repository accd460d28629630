package onedrive

import (
	"encoding/base64"
	"strings"
)

// encodeShareToken rewrites a OneDrive share URL into the API's
// share-token form: base64url(share_url), padding stripped, prefixed
// with "u!" (spec §4.C.1's "URL-safe base64 rewrite of the share URL").
func encodeShareToken(shareURL string) string {
	encoded := base64.URLEncoding.EncodeToString([]byte(shareURL))
	encoded = strings.TrimRight(encoded, "=")

	return "u!" + encoded
}

// rootChildrenPath is the listing endpoint for a share token's root item.
func rootChildrenPath(shareToken string) string {
	return "/shares/" + shareToken + "/root?$expand=children"
}

// childrenPath pages through a folder item's children by item id.
func childrenPath(driveID, itemID string) string {
	return "/drives/" + driveID + "/items/" + itemID + "/children"
}
