package lexicon

import "github.com/spigell/candidate-ranker/internal/matrix"

// Default returns the built-in lexicon tuned for the Korean/English tech hiring market.
func Default() *Lexicon {
	return &Lexicon{
		GenericTitles: []string{"engineer", "developer", "programmer", "staff", "intern", "개발자", "엔지니어"},
		RoleGroups: []RoleGroup{
			{Name: "product", Keywords: []string{"product", "pm", "po", "planning", "기획", "manager"}},
			{Name: "engineering", Keywords: []string{"engineer", "developer", "backend", "frontend", "fullstack", "sw", "software", "tech", "개발"}, Strict: true},
		},
		DisqualifierRules: []DisqualifierRule{
			{Signal: "marketing", Title: "marketing", Unless: "pm"},
			{Signal: "junior", Title: "junior"},
			{Signal: "intern", Title: "intern"},
			{Signal: "신입", Title: "신입"},
		},
		DomainBonuses: []DomainBonus{
			{
				Name:         "finance",
				RoleKeywords: []string{"finance", "fp&a", "재무", "회계", "accounting", "business analyst", "기획"},
				Tiers: []BonusTier{
					{Points: 15, Terms: []string{"budget", "forecast", "p&l", "financial model", "예산", "손익"}},
					{Points: 10, Terms: []string{"excel", "sql", "data analysis", "bi", "데이터"}},
					{Points: 10, Terms: []string{"fp&a", "경영기획", "재무기획", "business analyst"}},
					{Points: 5, Terms: []string{"보험", "insurance", "fintech", "핀테크"}},
				},
				Cap: 40,
			},
		},
		RoleClusters: []RoleCluster{
			{Name: "LEADERSHIP", Keywords: []string{"cto", "cpo", "head of", "vp ", "director", "본부장", "실장"}},
			{Name: "TECH_AI_DATA", Keywords: []string{"machine learning", "ml ", "data scientist", "data engineer", "ai ", "llm", "데이터", "인공지능"}},
			{Name: "TECH_HARDWARE", Keywords: []string{"npu", "fpga", "asic", "hardware", "firmware", "반도체", "회로"}},
			{Name: "TECH_LOW_LEVEL", Keywords: []string{"embedded", "kernel", "driver", "bsp", "system software", "compiler", "임베디드"}},
			{Name: "TECH_NET_SEC", Keywords: []string{"security", "network", "보안", "네트워크"}},
			{Name: "TECH_CLIENT", Keywords: []string{"frontend", "front-end", "ios", "android", "mobile", "프론트"}},
			{Name: "TECH_PLATFORM", Keywords: []string{"backend", "back-end", "devops", "sre", "platform", "server", "infra", "백엔드", "서버"}},
			{Name: "PRODUCT_PLANNING", Keywords: []string{"product", "pm", "po ", "planner", "기획"}},
			{Name: "DESIGN", Keywords: []string{"designer", "ux", "ui ", "디자인"}},
			{Name: "SALES_MARKETING", Keywords: []string{"marketing", "sales", "growth", "마케팅", "영업"}},
			{Name: "OPERATION_SCM", Keywords: []string{"operation", "scm", "logistics", "운영", "물류"}},
			{Name: "CORPORATE", Keywords: []string{"finance", "accounting", "hr", "legal", "재무", "회계", "인사", "법무"}},
		},
		RoleAliases: matrix.DefaultRoleAliases(),
		Archetypes:  matrix.DefaultArchetypes(),
	}
}
