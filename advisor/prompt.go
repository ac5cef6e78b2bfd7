package advisor

import "fmt"

const promptTemplate = "You are an expert in web design and user experience. " +
	"Analyze the %[1]s image of a %[2]s website provided below. " +
	"Provide 3-5 specific, actionable suggestions to improve its design, layout, text, or functionality. " +
	"Tailor the suggestions to enhance aesthetics and usability for a %[2]s website. " +
	"For example, suggest changes to colors, fonts, navigation, or content placement " +
	"that align with best practices for %[2]s websites. " +
	"Format the output as a numbered list.\n\nImage: [Attached]"

// Prompt returns the suggestion prompt for a section of a website type.
func Prompt(section, websiteType string) string {
	return fmt.Sprintf(promptTemplate, section, websiteType)
}
