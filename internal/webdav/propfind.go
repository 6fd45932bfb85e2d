package webdav

import (
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/derezo/docstore/internal/fsstore"
)

// depth values accepted by PROPFIND (§4.I).
const (
	depthZero     = "0"
	depthOne      = "1"
	depthInfinity = "infinity"
)

type davEntry struct {
	relPath string
	isDir   bool
	size    int64
	modTime time.Time
}

func (h *Handler) handlePropfind(w http.ResponseWriter, r *http.Request, auth *authedRequest, relPath string) {
	depth := r.Header.Get("Depth")
	if depth == "" {
		depth = depthInfinity
	}
	if depth != depthZero && depth != depthOne && depth != depthInfinity {
		http.Error(w, "invalid Depth header", http.StatusBadRequest)
		return
	}

	root := h.vaultRoot(auth)
	kind, err := fsstore.PathExists(root, resolvedOrRoot(relPath))
	if err != nil {
		writeDberr(w, err)
		return
	}
	if kind == fsstore.None {
		http.NotFound(w, r)
		return
	}

	entries, err := h.collectEntries(root, relPath, kind, depth)
	if err != nil {
		writeDberr(w, err)
		return
	}

	doc := buildMultistatus(auth.vault.Slug, entries)
	body, err := doc.WriteToBytes()
	if err != nil {
		http.Error(w, "failed to render multistatus response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	w.Write(body)
}

// resolvedOrRoot maps the empty vault-root path onto "." for PathExists,
// which otherwise only understands vault-relative file/directory paths.
func resolvedOrRoot(relPath string) string {
	if relPath == "" {
		return "."
	}
	return relPath
}

func (h *Handler) collectEntries(root, relPath string, kind fsstore.EntryKind, depth string) ([]davEntry, error) {
	self, err := statEntry(root, relPath, kind)
	if err != nil {
		return nil, err
	}
	entries := []davEntry{self}

	if depth == depthZero || kind != fsstore.Directory {
		return entries, nil
	}

	absDir := fsstore.AbsPath(root, resolvedOrRoot(relPath))
	children, err := listImmediateChildren(absDir)
	if err != nil {
		return nil, err
	}
	for _, name := range children {
		childRel := name
		if relPath != "" {
			childRel = path.Join(relPath, name)
		}
		childKind, err := fsstore.PathExists(root, childRel)
		if err != nil {
			continue
		}
		child, err := statEntry(root, childRel, childKind)
		if err != nil {
			continue
		}
		entries = append(entries, child)

		if depth == depthInfinity && childKind == fsstore.Directory {
			sub, err := h.collectEntries(root, childRel, childKind, depthInfinity)
			if err == nil && len(sub) > 0 {
				entries = append(entries, sub[1:]...)
			}
		}
	}
	return entries, nil
}

func statEntry(root, relPath string, kind fsstore.EntryKind) (davEntry, error) {
	info, err := fsstore.Stat(root, resolvedOrRoot(relPath))
	if err != nil {
		return davEntry{}, err
	}
	return davEntry{relPath: relPath, isDir: kind == fsstore.Directory, size: info.Size(), modTime: info.ModTime()}, nil
}

func listImmediateChildren(absDir string) ([]string, error) {
	entries, err := dirEntries(absDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e, ".") || fsstore.IsTempFile(e) {
			continue
		}
		names = append(names, e)
	}
	return names, nil
}

// buildMultistatus renders a D:multistatus document with one D:response per
// entry, per §4.I's PROPFIND table.
func buildMultistatus(vaultSlug string, entries []davEntry) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	multistatus := doc.CreateElement("D:multistatus")
	multistatus.CreateAttr("xmlns:D", "DAV:")

	for _, e := range entries {
		response := multistatus.CreateElement("D:response")
		href := "/webdav/" + vaultSlug + "/" + e.relPath
		if e.isDir && e.relPath != "" {
			href += "/"
		}
		response.CreateElement("D:href").SetText(href)

		propstat := response.CreateElement("D:propstat")
		prop := propstat.CreateElement("D:prop")

		resourcetype := prop.CreateElement("D:resourcetype")
		if e.isDir {
			resourcetype.CreateElement("D:collection")
		}

		prop.CreateElement("D:getcontentlength").SetText(strconv.FormatInt(e.size, 10))
		prop.CreateElement("D:getlastmodified").SetText(e.modTime.UTC().Format(http.TimeFormat))
		prop.CreateElement("D:getcontenttype").SetText(contentTypeFor(e))

		if !e.isDir {
			prop.CreateElement("D:getetag").SetText(etagFor(e.size, e.modTime))
		}

		propstat.CreateElement("D:status").SetText("HTTP/1.1 200 OK")
	}

	return doc
}

func contentTypeFor(e davEntry) string {
	if e.isDir {
		return "httpd/unix-directory"
	}
	return "text/markdown; charset=utf-8"
}

// etagFor matches §4.I's ETag format: "<size>-<mtime36>".
func etagFor(size int64, modTime time.Time) string {
	return `"` + strconv.FormatInt(size, 10) + "-" + strconv.FormatInt(modTime.UnixNano(), 36) + `"`
}

func lockResponseXML() string {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	prop := doc.CreateElement("D:prop")
	prop.CreateAttr("xmlns:D", "DAV:")
	lockdiscovery := prop.CreateElement("D:lockdiscovery")
	activelock := lockdiscovery.CreateElement("D:activelock")
	activelock.CreateElement("D:locktype").CreateElement("D:write")
	activelock.CreateElement("D:lockscope").CreateElement("D:exclusive")
	activelock.CreateElement("D:depth").SetText(depthInfinity)
	activelock.CreateElement("D:locktoken").CreateElement("D:href").SetText("urn:uuid:" + staticLockToken)
	out, _ := doc.WriteToString()
	return out
}

// staticLockToken is a stub token: LOCK/UNLOCK are not enforced (§4.I),
// there is no contention to arbitrate in a single-user-per-vault model.
const staticLockToken = "00000000-0000-0000-0000-000000000000"
