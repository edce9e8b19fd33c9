package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ndlib/replication/replica"
)

var (
	replicaVersion int
	replicaHome    string
)

var replicateCmd = &cobra.Command{
	Use:   "replicate <object id> <object directory>",
	Short: "package one version of a stored object as a replica bag",
	Long: `replicate tars a version directory of the object into a new sha256
bag inside the replica cache, at <replica cache>/<home>/<replica id>. The
object directory holds one directory per version, named v0001, v0002, ...`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := replica.FindVersion(args[0], args[1], replicaVersion)
		if err != nil {
			return err
		}
		b := &replica.Builder{
			Cache: replica.Cache{Root: cfg.ReplicaCache},
			Home:  replicaHome,
		}
		r, err := b.Build(v)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 5, 1, 3, ' ', 0)
		fmt.Fprintf(w, "Replica:\t%s\n", r.ID)
		fmt.Fprintf(w, "Home:\t%s\n", r.HomeRepository)
		fmt.Fprintf(w, "Created:\t%v\n", r.CreateDate)
		fmt.Fprintf(w, "Bag:\t%s\n", r.Bag.Path())
		fmt.Fprintf(w, "Payload size:\t%d\n", r.PayloadSize)
		fmt.Fprintf(w, "Payload %s:\t%s\n", r.PayloadFixityType, r.PayloadFixity)
		return w.Flush()
	},
}

func init() {
	replicateCmd.Flags().IntVar(&replicaVersion, "version", 0, "version number to replicate (default the latest)")
	replicateCmd.Flags().StringVar(&replicaHome, "home", replica.DefaultHome, "name of the repository the object comes from")
}
