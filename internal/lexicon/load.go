package lexicon

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Load reads a TOML lexicon. Tables present in the file replace the
// corresponding defaults, absent tables keep them.
func Load(path string) (*Lexicon, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon file %q: %w", path, err)
	}

	var lex Lexicon
	if err := toml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("parsing lexicon file %q: %w", path, err)
	}
	lex.fillDefaults(Default())

	if err := lex.Validate(); err != nil {
		return nil, fmt.Errorf("lexicon file %q: %w", path, err)
	}

	return &lex, nil
}

func (l *Lexicon) fillDefaults(def *Lexicon) {
	if l.GenericTitles == nil {
		l.GenericTitles = def.GenericTitles
	}
	if l.RoleGroups == nil {
		l.RoleGroups = def.RoleGroups
	}
	if l.DisqualifierRules == nil {
		l.DisqualifierRules = def.DisqualifierRules
	}
	if l.DomainBonuses == nil {
		l.DomainBonuses = def.DomainBonuses
	}
	if l.RoleClusters == nil {
		l.RoleClusters = def.RoleClusters
	}
	if l.RoleAliases == nil {
		l.RoleAliases = def.RoleAliases
	}
	if l.Archetypes == nil {
		l.Archetypes = def.Archetypes
	}
}

// Validate rejects data the scorers cannot use.
func (l *Lexicon) Validate() error {
	for _, b := range l.DomainBonuses {
		for _, tier := range b.Tiers {
			if tier.Points < 0 {
				return fmt.Errorf("domain bonus %s: negative tier points", b.Name)
			}
		}
	}
	for _, a := range l.Archetypes {
		if len(a.Match) == 0 {
			return fmt.Errorf("archetype %s has no match keywords", a.Matrix.Name)
		}
		if err := a.Matrix.Validate(); err != nil {
			return err
		}
	}
	return nil
}
