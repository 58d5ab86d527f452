package toolcli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kumasuke/gsu/internal/acl"
	"github.com/kumasuke/gsu/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newListCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "ls url...",
		Short: "List objects matching the given URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd.Context(), open, func(store storage.Storage) error {
				matched := 0
				for _, arg := range args {
					url, ok, err := parseURL(arg)
					if err != nil {
						return commandErrorf("%v", err)
					}
					if !ok {
						return commandErrorf("ls only supports cloud URLs, got %q", arg)
					}

					urls, err := expand(cmd.Context(), store, url)
					if err != nil {
						return err
					}
					for _, u := range urls {
						fmt.Fprintln(cmd.OutOrStdout(), u.String())
					}
					matched += len(urls)
				}
				if matched == 0 {
					return commandErrorf("One or more URLs matched no objects.")
				}
				return nil
			})
		},
	}
}

func newCopyCmd(open Opener) *cobra.Command {
	var preserveACL bool

	cmd := &cobra.Command{
		Use:   "cp [-p] src dst",
		Short: "Copy objects between local files and buckets",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, srcCloud, err := parseURL(args[0])
			if err != nil {
				return commandErrorf("%v", err)
			}
			dst, dstCloud, err := parseURL(args[1])
			if err != nil {
				return commandErrorf("%v", err)
			}

			switch {
			case !srcCloud && !dstCloud:
				return commandErrorf("copying from local to local is not supported")
			case !srcCloud:
				return withStorage(cmd.Context(), open, func(store storage.Storage) error {
					return upload(cmd.Context(), store, args[0], dst)
				})
			case !dstCloud:
				return withStorage(cmd.Context(), open, func(store storage.Storage) error {
					return download(cmd.Context(), store, src, args[1])
				})
			default:
				return withStorage(cmd.Context(), open, func(store storage.Storage) error {
					return copyCloud(cmd.Context(), store, src, dst, preserveACL)
				})
			}
		},
	}

	cmd.Flags().BoolVarP(&preserveACL, "preserve", "p", false, "preserve the source ACL on the destination")
	return cmd
}

func newRemoveCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "rm url...",
		Short: "Remove objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd.Context(), open, func(store storage.Storage) error {
				for _, arg := range args {
					url, ok, err := parseURL(arg)
					if err != nil {
						return commandErrorf("%v", err)
					}
					if !ok {
						return commandErrorf("rm only supports cloud URLs, got %q", arg)
					}

					targets := []cloudURL{url}
					if hasWildcard(url.Key) {
						targets, err = expand(cmd.Context(), store, url)
						if err != nil {
							return err
						}
						if len(targets) == 0 {
							return commandErrorf("No URLs matched: %s", url)
						}
					}

					for _, target := range targets {
						if err := store.DeleteObject(cmd.Context(), target.Bucket, target.Key); err != nil {
							return storageError(err, target)
						}
						fmt.Fprintf(cmd.ErrOrStderr(), "Removing %s...\n", target)
					}
				}
				return nil
			})
		},
	}
}

func newACLCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acl",
		Short: "Get or set object ACLs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get url",
		Short: "Print the ACL document of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := requireObjectURL(args[0])
			if err != nil {
				return err
			}
			return withStorage(cmd.Context(), open, func(store storage.Storage) error {
				policy, err := store.GetObjectACL(cmd.Context(), url.Bucket, url.Key)
				if err != nil {
					return storageError(err, url)
				}
				doc, err := acl.Marshal(policy)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(doc)
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set canned-acl url",
		Short: "Apply a canned ACL to an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := requireObjectURL(args[1])
			if err != nil {
				return err
			}
			policy, err := acl.FromCanned(acl.CannedACL(args[0]), acl.DefaultOwnerID, acl.DefaultOwnerDisplay)
			if err != nil {
				return commandErrorf("%v", err)
			}
			return withStorage(cmd.Context(), open, func(store storage.Storage) error {
				if err := store.PutObjectACL(cmd.Context(), url.Bucket, url.Key, policy); err != nil {
					return storageError(err, url)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Setting ACL on %s...\n", url)
				return nil
			})
		},
	})

	return cmd
}

func newMakeBucketCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "mb url...",
		Short: "Create buckets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd.Context(), open, func(store storage.Storage) error {
				for _, arg := range args {
					url, ok, err := parseURL(arg)
					if err != nil {
						return commandErrorf("%v", err)
					}
					if !ok || url.Key != "" {
						return commandErrorf("mb expects a bucket URL, got %q", arg)
					}
					if err := store.CreateBucket(cmd.Context(), url.Bucket); err != nil {
						return storageError(err, url)
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "Creating %s/...\n", url)
				}
				return nil
			})
		},
	}
}

func requireObjectURL(arg string) (cloudURL, error) {
	url, ok, err := parseURL(arg)
	if err != nil {
		return cloudURL{}, commandErrorf("%v", err)
	}
	if !ok || url.Key == "" || hasWildcard(url.Key) {
		return cloudURL{}, commandErrorf("%q does not name a single object", arg)
	}
	return url, nil
}

// expand resolves url to the object URLs it names. Without wildcards a URL
// names either one object or, as a folder, the objects directly inside it.
func expand(ctx context.Context, store storage.Storage, url cloudURL) ([]cloudURL, error) {
	pattern := url.Key
	switch {
	case pattern == "":
		pattern = "*"
	case !hasWildcard(pattern):
		if _, err := store.HeadObject(ctx, url.Bucket, pattern); err == nil {
			return []cloudURL{url}, nil
		}
		pattern = strings.TrimSuffix(pattern, "/") + "/*"
	}

	re, err := compileGlob(pattern)
	if err != nil {
		return nil, commandErrorf("%v", err)
	}

	objects, err := store.ListObjects(ctx, url.Bucket, literalPrefix(pattern))
	if err != nil {
		return nil, storageError(err, url)
	}

	urls := []cloudURL{}
	for _, obj := range objects {
		if re.MatchString(obj.Key) {
			urls = append(urls, url.withKey(obj.Key))
		}
	}
	return urls, nil
}

func upload(ctx context.Context, store storage.Storage, localPath string, dst cloudURL) error {
	file, err := os.Open(localPath)
	if err != nil {
		return commandErrorf("No URLs matched: %s", localPath)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return commandErrorf("%s is a directory", localPath)
	}

	if dst.Key == "" || strings.HasSuffix(dst.Key, "/") {
		dst = dst.withKey(dst.Key + filepath.Base(localPath))
	}

	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if _, err := store.PutObject(ctx, dst.Bucket, dst.Key, file, info.Size(), contentType); err != nil {
		return storageError(err, dst)
	}

	log.Debug().Str("src", localPath).Str("dst", dst.String()).Int64("size", info.Size()).Msg("Uploaded object")
	return nil
}

func download(ctx context.Context, store storage.Storage, src cloudURL, localPath string) error {
	data, err := store.GetObject(ctx, src.Bucket, src.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return commandErrorf("No URLs matched: %s", src)
		}
		return storageError(err, src)
	}
	defer data.Body.Close()

	if info, err := os.Stat(localPath); err == nil && info.IsDir() {
		localPath = filepath.Join(localPath, path.Base(src.Key))
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	if _, err := io.Copy(out, data.Body); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	return out.Close()
}

func copyCloud(ctx context.Context, store storage.Storage, src, dst cloudURL, preserveACL bool) error {
	if dst.Key == "" || strings.HasSuffix(dst.Key, "/") {
		dst = dst.withKey(dst.Key + path.Base(src.Key))
	}

	if _, err := store.CopyObject(ctx, src.Bucket, src.Key, dst.Bucket, dst.Key, preserveACL); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return commandErrorf("No URLs matched: %s", src)
		}
		return storageError(err, src)
	}

	log.Debug().Str("src", src.String()).Str("dst", dst.String()).Bool("preserve_acl", preserveACL).Msg("Copied object")
	return nil
}
