package memory

import "trivia-service/internal/domain"

// SampleQuestions is the built-in bank used when no database is configured.
func SampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID: "geo-1", Category: "Geography", Subcategory: "Capitals", Difficulty: 1,
			Text:         "What is the capital of Australia?",
			Options:      []string{"Sydney", "Melbourne", "Canberra", "Perth"},
			CorrectIndex: 2,
			Explanation:  "Canberra was purpose-built as the capital as a compromise between Sydney and Melbourne.",
		},
		{
			ID: "geo-2", Category: "Geography", Subcategory: "Rivers", Difficulty: 2,
			Text:         "Which river flows through Budapest?",
			Options:      []string{"Danube", "Rhine", "Vistula", "Elbe"},
			CorrectIndex: 0,
			Explanation:  "The Danube separates Buda from Pest.",
		},
		{
			ID: "geo-3", Category: "Geography", Subcategory: "Mountains", Difficulty: 3,
			Text:         "K2 lies on the border between Pakistan and which country?",
			Options:      []string{"India", "Nepal", "China", "Afghanistan"},
			CorrectIndex: 2,
			Explanation:  "K2 straddles the Pakistan-China border in the Karakoram range.",
		},
		{
			ID: "sci-1", Category: "Science", Subcategory: "Chemistry", Difficulty: 1,
			Text:         "What is the chemical symbol for gold?",
			Options:      []string{"Go", "Gd", "Au", "Ag"},
			CorrectIndex: 2,
			Explanation:  "Au comes from the Latin aurum.",
		},
		{
			ID: "sci-2", Category: "Science", Subcategory: "Physics", Difficulty: 2,
			Text:         "What is the SI unit of electrical resistance?",
			Options:      []string{"Volt", "Ohm", "Ampere", "Watt"},
			CorrectIndex: 1,
			Remark:       "Named after Georg Ohm.",
		},
		{
			ID: "sci-3", Category: "Science", Subcategory: "Biology", Difficulty: 3,
			Text:         "Which organelle is known as the powerhouse of the cell?",
			Options:      []string{"Ribosome", "Golgi apparatus", "Nucleus", "Mitochondrion"},
			CorrectIndex: 3,
			Explanation:  "Mitochondria produce most of the cell's ATP.",
		},
		{
			ID: "sci-4", Category: "Science", Subcategory: "Astronomy", Difficulty: 4,
			Text:         "Which planet has the shortest day?",
			Options:      []string{"Jupiter", "Saturn", "Earth", "Neptune"},
			CorrectIndex: 0,
			Explanation:  "Jupiter rotates once in just under ten hours.",
		},
		{
			ID: "his-1", Category: "History", Subcategory: "Ancient", Difficulty: 2,
			Text:         "Which civilization built Machu Picchu?",
			Options:      []string{"Aztec", "Maya", "Inca", "Olmec"},
			CorrectIndex: 2,
			Explanation:  "Machu Picchu was built by the Inca in the 15th century.",
		},
		{
			ID: "his-2", Category: "History", Subcategory: "Modern", Difficulty: 3,
			Text:         "In which year did the Berlin Wall fall?",
			Options:      []string{"1987", "1989", "1991", "1985"},
			CorrectIndex: 1,
		},
		{
			ID: "his-3", Category: "History", Subcategory: "Medieval", Difficulty: 5,
			Text:         "The Magna Carta was sealed in which year?",
			Options:      []string{"1066", "1215", "1314", "1415"},
			CorrectIndex: 1,
			Explanation:  "King John sealed it at Runnymede in June 1215.",
		},
		{
			ID: "tec-1", Category: "Technology", Subcategory: "Computing", Difficulty: 1,
			Text:         "What does CPU stand for?",
			Options:      []string{"Central Processing Unit", "Computer Personal Unit", "Central Program Utility", "Core Processing Unit"},
			CorrectIndex: 0,
		},
		{
			ID: "tec-2", Category: "Technology", Subcategory: "Networking", Difficulty: 3,
			Text:         "Which port does HTTPS use by default?",
			Options:      []string{"80", "21", "443", "8080"},
			CorrectIndex: 2,
		},
		{
			ID: "tec-3", Category: "Technology", Subcategory: "Languages", Difficulty: 4,
			Text:         "Which company originally developed the Go programming language?",
			Options:      []string{"Microsoft", "Google", "Mozilla", "Apple"},
			CorrectIndex: 1,
			Remark:       "Announced publicly in 2009.",
		},
		{
			ID: "art-1", Category: "Arts", Subcategory: "Painting", Difficulty: 2,
			Text:         "Who painted The Starry Night?",
			Options:      []string{"Claude Monet", "Vincent van Gogh", "Paul Cezanne", "Edvard Munch"},
			CorrectIndex: 1,
		},
		{
			ID: "art-2", Category: "Arts", Subcategory: "Music", Difficulty: 3,
			Text:         "How many symphonies did Beethoven complete?",
			Options:      []string{"Seven", "Eight", "Nine", "Ten"},
			CorrectIndex: 2,
		},
	}
}
