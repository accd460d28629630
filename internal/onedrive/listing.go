package onedrive

import "time"

// driveItem is the subset of the OneDrive DriveItem JSON representation
// this package needs: https://learn.microsoft.com/onedrive/developer/rest-api/resources/driveitem
type driveItem struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Size                 int64      `json:"size"`
	LastModifiedDateTime time.Time  `json:"lastModifiedDateTime"`
	Folder               *folder    `json:"folder,omitempty"`
	File                 *fileFacet `json:"file,omitempty"`
	DownloadURL          string     `json:"@microsoft.graph.downloadUrl,omitempty"`
	ParentReference      *parentRef `json:"parentReference,omitempty"`
	Children             *childPage `json:"children,omitempty"`
}

type folder struct {
	ChildCount int `json:"childCount"`
}

type fileFacet struct {
	Hashes fileHashes `json:"hashes"`
}

type fileHashes struct {
	Sha256Hash string `json:"sha256Hash"`
}

type parentRef struct {
	DriveID string `json:"driveId"`
}

// childPage is one page of a folder's children, honoring the provider's
// continuation-token field ("@odata.nextLink") per spec §4.C.3.
type childPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink,omitempty"`
}

func (i driveItem) isFolder() bool {
	return i.Folder != nil
}
