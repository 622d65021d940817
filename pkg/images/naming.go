package images

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/hanamal24/site-sync/pkg/models"
	"github.com/hanamal24/site-sync/pkg/utils"
)

const defaultExt = ".jpg"

// knownExts maps recognised image extensions to their canonical form
var knownExts = map[string]string{
	".jpg":  ".jpg",
	".jpeg": ".jpg",
	".png":  ".png",
	".gif":  ".gif",
	".webp": ".webp",
	".svg":  ".svg",
	".avif": ".avif",
}

// StableFilename returns the deterministic filename for a slot: the first 12
// hex chars of md5("<recordId>-<fieldName>[-<index> if > 0]") plus ext.
func StableFilename(slot models.SlotKey, ext string) string {
	return utils.StableName(slot.NameSeed()) + ext
}

// ChooseExtension picks a file extension: the source URL's when recognised,
// then the Content-Type's, then .jpg.
func ChooseExtension(sourceURL, contentType string) string {
	if u, err := url.Parse(sourceURL); err == nil {
		if ext, ok := knownExts[strings.ToLower(path.Ext(u.Path))]; ok {
			return ext
		}
	}

	if contentType != "" {
		if mimeType, _, err := mime.ParseMediaType(contentType); err == nil {
			switch mimeType {
			case "image/jpeg", "image/jpg", "image/pjpeg":
				return ".jpg"
			case "image/png":
				return ".png"
			case "image/gif":
				return ".gif"
			case "image/webp":
				return ".webp"
			case "image/svg+xml":
				return ".svg"
			case "image/avif":
				return ".avif"
			}
			if exts, err := mime.ExtensionsByType(mimeType); err == nil {
				for _, e := range exts {
					if canon, ok := knownExts[e]; ok {
						return canon
					}
				}
			}
		}
	}
	return defaultExt
}

// LocalPath joins the public prefix and a filename into the site path
func LocalPath(publicPrefix, filename string) string {
	if publicPrefix == "" || publicPrefix == "/" {
		return "/" + filename
	}
	return strings.TrimRight(publicPrefix, "/") + "/" + filename
}
