package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aflah02/tokensmith"
	"github.com/aflah02/tokensmith/pack"
)

type rootFlags struct {
	data    string
	vocab   uint64
	verbose bool
}

func (f *rootFlags) open() (*tokensmith.Manager, error) {
	if f.data == "" {
		return nil, fmt.Errorf("--data is required")
	}
	return tokensmith.Open(f.data,
		tokensmith.WithVocabSize(f.vocab),
		tokensmith.WithVerbose(f.verbose),
	)
}

func parseNgram(args []string) ([]uint32, error) {
	ngram := make([]uint32, len(args))
	for i, a := range args {
		v, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("token %q is not a valid token ID", a)
		}
		ngram[i] = uint32(v)
	}
	return ngram, nil
}

// NewCLI builds the tokensmith command tree.
func NewCLI() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "tokensmith",
		Short:         "Inspect, search, and simulate training over tokenized corpora",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.data, "data", "", "dataset prefix (expects <prefix>.bin and <prefix>.idx)")
	rootCmd.PersistentFlags().Uint64Var(&flags.vocab, "vocab", 1<<16, "vocabulary size (2^16 or 2^32)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log build progress")

	rootCmd.AddCommand(newIndexCmd(flags))
	rootCmd.AddCommand(newQueryCmd(flags, "count", "Count occurrences of an n-gram"))
	rootCmd.AddCommand(newQueryCmd(flags, "positions", "List every starting position of an n-gram"))
	rootCmd.AddCommand(newQueryCmd(flags, "next", "Show the next-token distribution after an n-gram"))
	rootCmd.AddCommand(newPlanCmd(flags))

	return rootCmd
}

func newIndexCmd(flags *rootFlags) *cobra.Command {
	var out string
	var force bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build (or reuse) the n-gram search index",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := flags.open()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.SetupSearch(out, !force); err != nil {
				return err
			}
			fmt.Printf("index ready: %s (%d tokens)\n", out, m.Search().NumTokens())
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "index file path")
	cmd.Flags().BoolVar(&force, "force", false, "rebuild even if a compatible index exists")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newQueryCmd(flags *rootFlags, name, short string) *cobra.Command {
	var indexPath string

	cmd := &cobra.Command{
		Use:   name + " TOKEN...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ngram, err := parseNgram(args)
			if err != nil {
				return err
			}

			m, err := flags.open()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.SetupSearch(indexPath, true); err != nil {
				return err
			}

			switch name {
			case "count":
				n, err := m.Search().Count(ngram)
				if err != nil {
					return err
				}
				fmt.Println(n)
			case "positions":
				pos, err := m.Search().Positions(ngram)
				if err != nil {
					return err
				}
				for _, p := range pos {
					fmt.Println(p)
				}
			case "next":
				dist, err := m.Search().CountNext(ngram)
				if err != nil {
					return err
				}
				toks := make([]uint32, 0, len(dist))
				for t := range dist {
					toks = append(toks, t)
				}
				sort.Slice(toks, func(i, j int) bool { return dist[toks[i]] > dist[toks[j]] })
				for _, t := range toks {
					fmt.Printf("%d\t%d\n", t, dist[t])
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&indexPath, "index", "", "index file path")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}

func newPlanCmd(flags *rootFlags) *cobra.Command {
	var (
		savePrefix string
		iters      int
		batch      int
		seqLen     int
		seed       int64
		policyStr  string
		splits     string
		splitStr   string
		extra      int
		force      bool
		inspect    int64
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build (or reuse) the batch-packing plan for a simulated run",
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := pack.ParsePolicy(policyStr)
			if err != nil {
				return err
			}
			split, err := pack.ParseSplit(splitStr)
			if err != nil {
				return err
			}

			m, err := flags.open()
			if err != nil {
				return err
			}
			defer m.Close()

			cfg := tokensmith.PackingConfig{
				Schedule: pack.Schedule{
					TrainIters:     iters,
					TrainBatchSize: batch,
					TrainSeqLen:    seqLen,
				},
				Seed:        seed,
				Policy:      policy,
				Splits:      splits,
				Split:       split,
				ExtraTokens: extra,
			}
			if err := m.SetupPacking(savePrefix, cfg, !force); err != nil {
				return err
			}
			fmt.Printf("plan ready: %d records\n", m.Plan().NumRecords())

			if inspect >= 0 {
				det, err := m.InspectSequence(inspect)
				if err != nil {
					return err
				}
				fmt.Printf("sequence %d: %d segment(s), docs %v, pad %d\n",
					det.Index, len(det.Segments), det.Documents, det.Pad)
				for i, seg := range det.Segments {
					fmt.Printf("  segment %d (doc %d): %v\n", i, det.Documents[i], seg)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&savePrefix, "save-prefix", "", "prefix for the plan cache file")
	cmd.Flags().IntVar(&iters, "iters", 0, "train iterations")
	cmd.Flags().IntVar(&batch, "batch", 0, "train batch size")
	cmd.Flags().IntVar(&seqLen, "seq-len", 0, "train sequence length")
	cmd.Flags().Int64Var(&seed, "seed", 1234, "shuffle seed")
	cmd.Flags().StringVar(&policyStr, "policy", "packed", "packing policy: packed, pack_until_overflow, unpacked")
	cmd.Flags().StringVar(&splits, "splits", "969,30,1", "train/valid/test split ratios")
	cmd.Flags().StringVar(&splitStr, "split", "train", "split to pack: train, valid, test")
	cmd.Flags().IntVar(&extra, "extra", 1, "extra tokens per sequence (causal shift)")
	cmd.Flags().BoolVar(&force, "force", false, "rebuild even if a matching cached plan exists")
	cmd.Flags().Int64Var(&inspect, "inspect", -1, "print the given sequence after building")
	_ = cmd.MarkFlagRequired("save-prefix")
	_ = cmd.MarkFlagRequired("iters")
	_ = cmd.MarkFlagRequired("batch")
	_ = cmd.MarkFlagRequired("seq-len")
	return cmd
}
