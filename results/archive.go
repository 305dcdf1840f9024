package results

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// archive writes every named file of dir into a gzipped tar at path, flat.
func archive(dir string, names []string, path string) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating archive")
	}
	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	for _, name := range names {
		if err := addFile(tw, filepath.Join(dir, name), name); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return errors.Wrap(err, "closing archive")
	}
	return errors.Wrap(gz.Close(), "compressing archive")
}

func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "archiving %s", name)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.WithStack(err)
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return errors.WithStack(err)
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return errors.Wrapf(err, "archiving %s", name)
	}
	_, err = io.Copy(tw, f)
	return errors.Wrapf(err, "archiving %s", name)
}
