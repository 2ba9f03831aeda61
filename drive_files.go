package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/wesnick/gshell/pkg/gshell"
)

const (
	folderMimeType     = "application/vnd.google-apps.folder"
	googleAppsMimeType = "application/vnd.google-apps."
	fileFields         = "id, name, mimeType, modifiedTime, size, parents, owners(emailAddress), webViewLink, trashed"
)

// defaultExportTypes maps Google editor formats to their download format
var defaultExportTypes = map[string]string{
	"application/vnd.google-apps.document":     "application/pdf",
	"application/vnd.google-apps.spreadsheet":  "text/csv",
	"application/vnd.google-apps.presentation": "application/pdf",
	"application/vnd.google-apps.drawing":      "image/png",
}

// fileOutput is JSON output for Drive files
type fileOutput struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MimeType     string   `json:"mimeType"`
	Size         int64    `json:"size,omitempty"`
	ModifiedTime string   `json:"modifiedTime,omitempty"`
	Parents      []string `json:"parents,omitempty"`
	Owners       []string `json:"owners,omitempty"`
	WebViewLink  string   `json:"webViewLink,omitempty"`
	Trashed      bool     `json:"trashed,omitempty"`
}

func toFileOutput(f *drive.File) fileOutput {
	o := fileOutput{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Size:         f.Size,
		ModifiedTime: f.ModifiedTime,
		Parents:      f.Parents,
		WebViewLink:  f.WebViewLink,
		Trashed:      f.Trashed,
	}
	for _, u := range f.Owners {
		o.Owners = append(o.Owners, u.EmailAddress)
	}
	return o
}

func fileKind(mimeType string) string {
	switch {
	case mimeType == folderMimeType:
		return "folder"
	case strings.HasPrefix(mimeType, googleAppsMimeType):
		return strings.TrimPrefix(mimeType, googleAppsMimeType)
	default:
		return "file"
	}
}

func writeFile(f fileOutput, out *outputWriter) error {
	if out.structured() {
		return out.writeData(f)
	}
	size := ""
	if f.Size > 0 {
		size = formatSize(f.Size)
	}
	return out.writeFields([][2]string{
		{"ID", f.ID},
		{"Name", f.Name},
		{"Type", f.MimeType},
		{"Size", size},
		{"Modified", formatRFC3339(f.ModifiedTime)},
		{"Parents", strings.Join(f.Parents, ", ")},
		{"Owners", strings.Join(f.Owners, ", ")},
		{"Link", f.WebViewLink},
	})
}

func runFilesList(ctx context.Context, conn *gshell.Connection, query string, limit int, orderBy string, sharedDrives bool, out *outputWriter) error {
	svc, err := driveService(conn)
	if err != nil {
		return err
	}
	if query == "" {
		query = "trashed = false"
	}
	out.writeVerbose("Listing files with query: %s", query)

	var files []*drive.File
	pageToken := ""
	for {
		call := svc.Files.List().
			Q(query).
			Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")")).
			Context(ctx)
		if orderBy != "" {
			call = call.OrderBy(orderBy)
		}
		if sharedDrives {
			call = call.SupportsAllDrives(true).IncludeItemsFromAllDrives(true).Corpora("allDrives")
		}
		size := int64(listPageSize)
		if limit > 0 && limit-len(files) < listPageSize {
			size = int64(limit - len(files))
		}
		call = call.PageSize(size)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var resp *drive.FileList
		if err := rpc(ctx, conn, "drive.Files.List", func() (err error) {
			resp, err = call.Do()
			return
		}); err != nil {
			return fmt.Errorf("failed to list files: %w", err)
		}
		files = append(files, resp.Files...)
		pageToken = resp.NextPageToken
		if pageToken == "" || (limit > 0 && len(files) >= limit) {
			break
		}
	}

	output := make([]fileOutput, len(files))
	for i, f := range files {
		output[i] = toFileOutput(f)
	}
	if out.structured() {
		return out.writeData(output)
	}
	if len(output) == 0 {
		out.writeMessage("No files found")
		return nil
	}

	headers := []string{"ID", "NAME", "TYPE", "SIZE", "MODIFIED"}
	rows := make([][]string, len(output))
	for i, f := range output {
		size := ""
		if f.Size > 0 {
			size = formatSize(f.Size)
		}
		rows[i] = []string{f.ID, truncateString(f.Name, 40), fileKind(f.MimeType), size, formatRFC3339(f.ModifiedTime)}
	}
	return out.writeTable(headers, rows)
}

func getFile(ctx context.Context, conn *gshell.Connection, svc *drive.Service, fileID string) (*drive.File, error) {
	var f *drive.File
	err := rpc(ctx, conn, "drive.Files.Get", func() (err error) {
		f, err = svc.Files.Get(fileID).SupportsAllDrives(true).Fields(fileFields).Context(ctx).Do()
		return
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

func runFilesGet(ctx context.Context, conn *gshell.Connection, fileID string, out *outputWriter) error {
	if fileID == "" {
		return fmt.Errorf("file ID is required")
	}
	svc, err := driveService(conn)
	if err != nil {
		return err
	}
	f, err := getFile(ctx, conn, svc, fileID)
	if err != nil {
		return err
	}
	return writeFile(toFileOutput(f), out)
}

func runFilesMkdir(ctx context.Context, conn *gshell.Connection, name, parent string, out *outputWriter) error {
	if name == "" {
		return fmt.Errorf("folder name is required")
	}
	svc, err := driveService(conn)
	if err != nil {
		return err
	}
	f := &drive.File{Name: name, MimeType: folderMimeType}
	if parent != "" {
		f.Parents = []string{parent}
	}

	var created *drive.File
	if err := rpc(ctx, conn, "drive.Files.Create", func() (err error) {
		created, err = svc.Files.Create(f).SupportsAllDrives(true).Fields(fileFields).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	if out.structured() {
		return out.writeData(toFileOutput(created))
	}
	out.writeMessage(fmt.Sprintf("Created folder %s (%s)", created.Name, created.Id))
	return nil
}

func runFilesUpload(ctx context.Context, conn *gshell.Connection, path, parent, name, mimeType string, out *outputWriter) error {
	if path == "" {
		return fmt.Errorf("file path is required")
	}
	svc, err := driveService(conn)
	if err != nil {
		return err
	}
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer fh.Close()

	if name == "" {
		name = filepath.Base(path)
	}
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(path))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	f := &drive.File{Name: name}
	if parent != "" {
		f.Parents = []string{parent}
	}
	out.writeVerbose("Uploading %s as %s (%s)", path, name, mimeType)

	var created *drive.File
	if err := rpc(ctx, conn, "drive.Files.Create", func() (err error) {
		created, err = svc.Files.Create(f).
			Media(fh, googleapi.ContentType(mimeType)).
			SupportsAllDrives(true).
			Fields(fileFields).
			Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	if out.structured() {
		return out.writeData(toFileOutput(created))
	}
	out.writeMessage(fmt.Sprintf("Uploaded %s (%s)", created.Name, created.Id))
	return nil
}

// localFileName reduces a server supplied name to a bare file name so that
// downloads land in the target directory.
func localFileName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch base {
	case "", ".", "..", "/":
		return "", fmt.Errorf("cannot derive a file name from %q; pass --output", name)
	}
	return base, nil
}

// runFilesDownload saves a file's content. Google editor files are exported,
// to exportMime when given or their default download format otherwise.
func runFilesDownload(ctx context.Context, conn *gshell.Connection, fileID, output, exportMime string, out *outputWriter) error {
	if fileID == "" {
		return fmt.Errorf("file ID is required")
	}
	svc, err := driveService(conn)
	if err != nil {
		return err
	}
	f, err := getFile(ctx, conn, svc, fileID)
	if err != nil {
		return err
	}
	if f.MimeType == folderMimeType {
		return fmt.Errorf("%s is a folder", f.Name)
	}

	export := strings.HasPrefix(f.MimeType, googleAppsMimeType)
	if export && exportMime == "" {
		exportMime = defaultExportTypes[f.MimeType]
		if exportMime == "" {
			return fmt.Errorf("%s cannot be downloaded; pass --export-mime", f.MimeType)
		}
	}
	if output == "" {
		if output, err = localFileName(f.Name); err != nil {
			return err
		}
		if export {
			if exts, _ := mime.ExtensionsByType(exportMime); len(exts) > 0 && filepath.Ext(output) == "" {
				output += exts[0]
			}
		}
	}

	var body io.ReadCloser
	if err := rpc(ctx, conn, "drive.Files.Download", func() error {
		if export {
			resp, err := svc.Files.Export(fileID, exportMime).Context(ctx).Download()
			if err != nil {
				return err
			}
			body = resp.Body
			return nil
		}
		resp, err := svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
		if err != nil {
			return err
		}
		body = resp.Body
		return nil
	}); err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer body.Close()

	var n int64
	if output == "-" {
		n, err = io.Copy(out.writer, body)
		if err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		return nil
	}
	dst, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	n, err = io.Copy(dst, body)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	if out.structured() {
		return out.writeData(map[string]interface{}{"id": fileID, "path": output, "bytes": n})
	}
	out.writeMessage(fmt.Sprintf("Saved %s (%s)", output, formatSize(n)))
	return nil
}

func runFilesCopy(ctx context.Context, conn *gshell.Connection, fileID, name, parent string, out *outputWriter) error {
	if fileID == "" {
		return fmt.Errorf("file ID is required")
	}
	svc, err := driveService(conn)
	if err != nil {
		return err
	}
	f := &drive.File{Name: name}
	if parent != "" {
		f.Parents = []string{parent}
	}
	var copied *drive.File
	if err := rpc(ctx, conn, "drive.Files.Copy", func() (err error) {
		copied, err = svc.Files.Copy(fileID, f).SupportsAllDrives(true).Fields(fileFields).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	if out.structured() {
		return out.writeData(toFileOutput(copied))
	}
	out.writeMessage(fmt.Sprintf("Copied to %s (%s)", copied.Name, copied.Id))
	return nil
}

func runFilesTrash(ctx context.Context, conn *gshell.Connection, fileID string, restore bool, out *outputWriter) error {
	if fileID == "" {
		return fmt.Errorf("file ID is required")
	}
	svc, err := driveService(conn)
	if err != nil {
		return err
	}
	f := &drive.File{Trashed: !restore, ForceSendFields: []string{"Trashed"}}
	var updated *drive.File
	if err := rpc(ctx, conn, "drive.Files.Update", func() (err error) {
		updated, err = svc.Files.Update(fileID, f).SupportsAllDrives(true).Fields(fileFields).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	if out.structured() {
		return out.writeData(toFileOutput(updated))
	}
	if restore {
		out.writeMessage(fmt.Sprintf("Restored %s from trash", updated.Name))
	} else {
		out.writeMessage(fmt.Sprintf("Moved %s to trash", updated.Name))
	}
	return nil
}

// runFilesDelete permanently deletes a file, skipping the trash
func runFilesDelete(ctx context.Context, conn *gshell.Connection, fileID string, force bool, out *outputWriter) error {
	if fileID == "" {
		return fmt.Errorf("file ID is required")
	}
	if !force {
		return fmt.Errorf("permanent deletion requires --force (use 'trash' to move to trash)")
	}
	svc, err := driveService(conn)
	if err != nil {
		return err
	}
	if err := rpc(ctx, conn, "drive.Files.Delete", func() error {
		return svc.Files.Delete(fileID).SupportsAllDrives(true).Context(ctx).Do()
	}); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if out.structured() {
		return out.writeData(map[string]string{"deleted": fileID})
	}
	out.writeMessage(fmt.Sprintf("Deleted %s", fileID))
	return nil
}
