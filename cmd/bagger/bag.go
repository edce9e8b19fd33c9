package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ndlib/replication/bagit"
	"github.com/ndlib/replication/command"
	"github.com/ndlib/replication/fixity"
)

var (
	linkModeStr  string
	tarfileName  string
	useOpenssl   bool
	verifyQuiet  bool
	errVerifyBad = errors.New("some bags failed verification")
)

var createCmd = &cobra.Command{
	Use:   "create <bag directory>",
	Short: "create an empty bag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bag, err := bagit.Create(args[0], bagOptions())
		if err != nil {
			return err
		}
		fmt.Println(bag.Path())
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <bag directory> <file or directory>...",
	Short: "add files to the payload of a bag",
	Long: `add places files in the payload and appends them to the manifests.
A directory's files keep their paths relative to the directory. A single
file is put at the top of the payload.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := bagit.ParseLinkMode(linkModeStr)
		if err != nil {
			return err
		}
		bag, err := bagit.Open(args[0], bagOptions())
		if err != nil {
			return err
		}
		c, err := fixity.NewComputer(cfg.Types()...)
		if err != nil {
			return err
		}
		c.Workers = cfg.Workers
		for _, source := range args[1:] {
			info, err := os.Stat(source)
			if err != nil {
				return err
			}
			if info.IsDir() {
				err = bag.AddDirToPayload(mode, source)
			} else {
				err = addFile(bag, c, mode, source)
			}
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{"bag": bag.Name(), "mode": mode}).Infoln("Added", source)
		}
		return nil
	},
}

func addFile(bag *bagit.Bag, c *fixity.Computer, mode bagit.LinkMode, source string) error {
	base := filepath.Dir(source)
	ff, err := c.ComputeFile(source, base)
	if err != nil {
		return err
	}
	return bag.AddFilesToPayload(mode, base, fixity.Map{ff.FileID: ff})
}

var tarCmd = &cobra.Command{
	Use:   "tar <bag directory> <source directory>",
	Short: "add a tar file of a directory to the payload of a bag",
	Long: `tar archives the source directory into the payload. Paths inside the
archive start with the name of the source directory.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bag, err := bagit.Open(args[0], bagOptions())
		if err != nil {
			return err
		}
		source, err := filepath.Abs(args[1])
		if err != nil {
			return err
		}
		name := tarfileName
		if name == "" {
			name = filepath.Base(source) + ".tar"
		}
		tf, err := bag.AddPayloadTarfile(name, source, filepath.Dir(source))
		if err != nil {
			return err
		}
		rel, err := tf.TarfileRelativePath()
		if err != nil {
			return err
		}
		fmt.Println(rel)
		return nil
	},
}

var sealCmd = &cobra.Command{
	Use:   "seal <bag directory>",
	Short: "write bag-info.txt and the tag manifests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bag, err := bagit.Open(args[0], bagOptions())
		if err != nil {
			return err
		}
		return bag.Seal()
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <bag directory>...",
	Short: "show the bag-info properties and payload size of bags",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			if err := printInfo(path); err != nil {
				return err
			}
		}
		return nil
	},
}

func printInfo(path string) error {
	bag, err := bagit.Open(path, bagOptions())
	if err != nil {
		return err
	}
	info, err := bag.ReadInfo()
	if err != nil {
		return err
	}
	// reading the manifests records the types the bag uses
	if _, err := bag.ReadManifestFiles(bagit.Manifest); err != nil {
		return err
	}
	size, err := bag.PayloadSize()
	if err != nil {
		return err
	}
	var keys []string
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println("Bag:", bag.Path())
	w := tabwriter.NewWriter(os.Stdout, 5, 1, 3, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(w, "%s:\t%s\n", k, info[k])
	}
	fmt.Fprintf(w, "Checksum types:\t%s\n", bag.Types())
	fmt.Fprintf(w, "Payload on disk:\t%s (%s)\n", size.Oxum(), bagit.HumanSize(size.Bytes))
	return w.Flush()
}

var verifyCmd = &cobra.Command{
	Use:   "verify <bag directory>...",
	Short: "check bags against their manifests",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed bool
		for _, path := range args {
			err := verifyBag(path)
			switch {
			case err == nil:
				if !verifyQuiet {
					fmt.Printf("%s: ok\n", path)
				}
			case bagit.IsVerificationFailure(err):
				failed = true
				fmt.Printf("%s: FAILED %s\n", path, err.Error())
			default:
				return err
			}
		}
		if failed {
			return errVerifyBad
		}
		return nil
	},
}

func verifyBag(path string) error {
	bag, err := bagit.Open(path, bagOptions())
	if err != nil {
		return err
	}
	return bag.Verify()
}

var diffCmd = &cobra.Command{
	Use:   "diff <bag directory>",
	Short: "list the payload files which disagree with the manifests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bag, err := bagit.Open(args[0], bagOptions())
		if err != nil {
			return err
		}
		recorded, err := bag.ReadManifestFiles(bagit.Manifest)
		if err != nil {
			return err
		}
		actual, err := bag.GeneratePayloadChecksums()
		if err != nil {
			return err
		}
		diff := bagit.ManifestDiff(recorded, actual)
		var ids []string
		for id := range diff {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		w := tabwriter.NewWriter(os.Stdout, 5, 1, 2, ' ', 0)
		for _, id := range ids {
			for _, t := range bag.Types() {
				d, ok := diff[id][t]
				if !ok {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\tmanifest=%s\tbag=%s\n", id, t, blank(d["manifest"]), blank(d["bag"]))
			}
		}
		return w.Flush()
	},
}

func blank(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var digestCmd = &cobra.Command{
	Use:   "digest <file>...",
	Short: "print the checksums of files",
	Long: `digest prints the checksums of each file, one line per algorithm.
With --openssl each digest is also computed by openssl and any disagreement
is reported as an error.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		types := cfg.Types()
		c, err := fixity.NewComputer(types...)
		if err != nil {
			return err
		}
		shell := command.Shell{}
		for _, path := range args {
			ff, err := c.ComputeFile(path, filepath.Dir(path))
			if err != nil {
				return err
			}
			for _, t := range types {
				sum := ff.Checksums[t]
				fmt.Printf("%s %s %s\n", t, sum, path)
				if !useOpenssl {
					continue
				}
				other, err := fixity.OpensslDigest(shell, t, path)
				if err != nil {
					return err
				}
				if other != sum {
					return errors.Errorf("%s %s: openssl gives %s", t, path, other)
				}
			}
		}
		return nil
	},
}

func bagOptions() bagit.Options {
	return bagit.Options{
		Types:   cfg.Types(),
		Workers: cfg.Workers,
	}
}

func init() {
	addCmd.Flags().StringVar(&linkModeStr, "link", bagit.Copy.String(), "how files are placed in the payload: copy, link, or symlink")
	tarCmd.Flags().StringVar(&tarfileName, "name", "", "name of the tar file in the payload (default <source name>.tar)")
	verifyCmd.Flags().BoolVarP(&verifyQuiet, "quiet", "q", false, "only report bags which fail")
	digestCmd.Flags().BoolVar(&useOpenssl, "openssl", false, "cross-check each digest with openssl")
}
